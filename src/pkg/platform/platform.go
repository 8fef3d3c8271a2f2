// Package platform defines the closed set of rebaseline platforms and their priority order.
package platform

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownPlatform = errors.New("unknown platform")

type Platform string

const (
	Mac      Platform = "mac"
	Win      Platform = "win"
	WinXP    Platform = "win-xp"
	WinVista Platform = "win-vista"
	Linux    Platform = "linux"
)

// PriorityOrder is both the processing order of platform passes and the
// fallback search order for duplicate detection. Later platforms may fall
// back to baselines committed by earlier ones, so passes must run one at a
// time in exactly this order.
var PriorityOrder = []Platform{Mac, Win, WinXP, WinVista, Linux}

// DefaultPlatforms and DefaultGPUPlatforms are used when no platform list is given.
var (
	DefaultPlatforms    = []Platform{Mac, Win, WinXP, WinVista, Linux}
	DefaultGPUPlatforms = []Platform{Mac, Win, Linux}
)

// Archive directory names on the buildbot, keyed by variant-qualified platform name.
var archiveDirNames = map[string]string{
	"win":       "Webkit_Win__deps_",
	"win-vista": "webkit-dbg-vista",
	"win-xp":    "Webkit_Win__deps_",
	"mac":       "Webkit_Mac10_5__deps_",
	"linux":     "Webkit_Linux__deps_",

	"win-canary":       "Webkit_Win",
	"win-vista-canary": "webkit-dbg-vista",
	"win-xp-canary":    "Webkit_Win",
	"mac-canary":       "Webkit_Mac10_5",
	"linux-canary":     "Webkit_Linux",

	"gpu-mac-canary":   "Webkit_Mac10_5_-_GPU",
	"gpu-win-canary":   "Webkit_Win_-_GPU",
	"gpu-linux-canary": "Webkit_Linux_-_GPU",
}

// Variant selects which bot family an archive comes from.
type Variant struct {
	Canary bool
	GPU    bool
}

// Key returns the variant-qualified name, e.g. "gpu-win-canary".
func (v Variant) Key(p Platform) string {
	key := string(p)
	if v.Canary {
		key += "-canary"
	}
	if v.GPU {
		key = "gpu-" + key
	}
	return key
}

// Parse validates a single platform name.
func Parse(name string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(name)))
	if p.Priority() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Priority is the position of p in PriorityOrder, or -1.
func (p Platform) Priority() int {
	for i, candidate := range PriorityOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// CanonicalName is the port name whose baseline directory holds p's baselines.
func (p Platform) CanonicalName() string {
	return "chromium-" + string(p)
}

// ArchiveDirName looks up the buildbot directory for p under the variant.
// overrides (keyed by variant key or plain platform name) take precedence.
func (p Platform) ArchiveDirName(v Variant, overrides map[string]string) (string, error) {
	key := v.Key(p)
	if dir, ok := overrides[key]; ok && dir != "" {
		return dir, nil
	}
	if dir, ok := archiveDirNames[key]; ok {
		return dir, nil
	}
	return "", fmt.Errorf("cannot find platform key %s in archive directory names", key)
}

// Ordered validates names and returns them sorted by PriorityOrder, without duplicates.
func Ordered(names []string) ([]Platform, error) {
	selected := make(map[Platform]bool, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		p, err := Parse(name)
		if err != nil {
			return nil, err
		}
		selected[p] = true
	}
	ordered := make([]Platform, 0, len(selected))
	for _, p := range PriorityOrder {
		if selected[p] {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// DefaultFallback is the ordered list of platforms whose baselines p falls
// back to: every platform ahead of it in PriorityOrder, nearest first.
func DefaultFallback(p Platform) []Platform {
	idx := p.Priority()
	if idx <= 0 {
		return nil
	}
	fallback := make([]Platform, 0, idx)
	for i := idx - 1; i >= 0; i-- {
		fallback = append(fallback, PriorityOrder[i])
	}
	return fallback
}
