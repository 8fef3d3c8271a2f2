package pathbuilder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PathBuilder interpolates variables into path or URL templates
type PathBuilder struct {
	Template string // e.g., "platform/chromium-[PLATFORM]"
}

// variablePattern matches [VARIABLE_NAME] patterns (alphanumeric and underscores)
// Using brackets instead of $ to avoid bash variable expansion issues
var variablePattern = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)\]`)

// Variable names understood by layoutchk templates
const (
	VarPlatform   = "PLATFORM"
	VarCanonical  = "CANONICAL"
	VarArchiveURL = "ARCHIVE_URL"
	VarArchiveDir = "ARCHIVE_DIR"
	VarRevision   = "REVISION"
)

const (
	DefaultBaselineDirTemplate = "platform/[CANONICAL]"
	DefaultArchiveURLTemplate  = "[ARCHIVE_URL]/[ARCHIVE_DIR]/[REVISION]/layout-test-results.zip"
)

// NewPathBuilder creates a PathBuilder and checks that it only uses allowed variables
func NewPathBuilder(template string, allowed ...string) (*PathBuilder, error) {
	pb := &PathBuilder{Template: template}
	if err := pb.Validate(allowed); err != nil {
		return nil, err
	}
	return pb, nil
}

// ParseTemplate extracts [VARIABLE] names from the template
func ParseTemplate(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			seen[match[1]] = true
			vars = append(vars, match[1])
		}
	}
	return vars
}

// Validate checks the template is non-empty and every [VAR] is in allowed (nil allows all)
func (pb *PathBuilder) Validate(allowed []string) error {
	if pb.Template == "" {
		return fmt.Errorf("template cannot be empty")
	}
	if allowed == nil {
		return nil
	}

	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}
	var unknown []string
	for _, varName := range ParseTemplate(pb.Template) {
		if !known[varName] {
			unknown = append(unknown, varName)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("template %q uses unknown variables: %v", pb.Template, unknown)
	}
	return nil
}

// InterpolatePath performs single interpolation with given values
func (pb *PathBuilder) InterpolatePath(values map[string]string) (string, error) {
	result := pb.Template
	for varName, value := range values {
		result = strings.ReplaceAll(result, "["+varName+"]", value)
	}

	// Check if any unresolved variables remain
	if variablePattern.MatchString(result) {
		unresolved := variablePattern.FindAllString(result, -1)
		return "", fmt.Errorf("unresolved variables in path: %v", unresolved)
	}

	return result, nil
}
