package export

import (
	"fmt"
	"strings"
)

// Markdown renders e as a report: a header block, one section per stage in
// order, then the summary or the failure.
func Markdown(e *RunExport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Triage report %s\n\n", e.RunID)
	if e.PatientID != "" {
		fmt.Fprintf(&b, "- **Patient:** %s\n", e.PatientID)
	}
	fmt.Fprintf(&b, "- **Status:** %s\n", e.Status)
	fmt.Fprintf(&b, "- **Exported:** %s\n", e.ExportedAt)
	if e.Symptoms != "" {
		fmt.Fprintf(&b, "- **Presenting complaint:** %s\n", e.Symptoms)
	}

	for _, s := range e.Stages {
		fmt.Fprintf(&b, "\n## %d. %s (confidence %d%%)\n\n", s.Index+1, s.Role, s.Confidence)
		b.WriteString(strings.TrimRight(s.Output, "\n"))
		b.WriteString("\n")
	}

	if e.Summary != "" {
		b.WriteString("\n## Summary\n\n")
		b.WriteString(strings.TrimRight(e.Summary, "\n"))
		b.WriteString("\n")
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "\n## Failed\n\n%s\n", e.Error)
	}
	return b.String()
}
