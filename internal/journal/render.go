package journal

import (
	"fmt"
	"strings"

	"github.com/ofujimoto/foreman/internal/model"
)

const entrySeparator = "----------------------------------------"

// RenderText generates the human-readable prose log from structured
// entries. Each entry starts with a session-id marker line, continues with
// labeled fields, and ends with a separator line.
func RenderText(entries []model.ProgressEntry) string {
	var b strings.Builder
	b.WriteString("# Progress Log\n\n")
	for _, e := range entries {
		b.WriteString(RenderEntry(e))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderEntry renders one entry in the journal format.
func RenderEntry(e model.ProgressEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session: %s\n", e.SessionID)
	fmt.Fprintf(&b, "Time: %s\n", e.Timestamp)
	fmt.Fprintf(&b, "Agent: %s\n", e.AgentType)
	fmt.Fprintf(&b, "Summary: %s\n", e.Summary)
	if e.FeatureID != "" {
		fmt.Fprintf(&b, "Feature: %s\n", e.FeatureID)
	}
	fmt.Fprintf(&b, "Status: %s\n", e.Status)
	if len(e.FilesModified) > 0 {
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(e.FilesModified, ", "))
	}
	if e.TestsRun > 0 {
		fmt.Fprintf(&b, "Tests: %d run, %d passed\n", e.TestsRun, e.TestsPassed)
	}
	if len(e.Issues) > 0 {
		fmt.Fprintf(&b, "Issues: %s\n", strings.Join(e.Issues, "; "))
	}
	if e.NextSteps != "" {
		fmt.Fprintf(&b, "Next steps: %s\n", e.NextSteps)
	}
	b.WriteString(entrySeparator + "\n")
	return b.String()
}
