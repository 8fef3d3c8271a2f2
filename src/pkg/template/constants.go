package template

const (
	FileNameRebaselineTemplate = "rebaseline.html.tmpl"

	// ReportFileName and ReportSubdir are relative to the HTML output directory.
	ReportFileName = "rebaseline.html"
	ReportSubdir   = "rebaseline_html"

	NoTestsMessage = "No tests found that need rebaselining."
)
