package journal

import (
	"strconv"
	"strings"

	"github.com/ofujimoto/foreman/internal/model"
)

// ParseText recovers structured entries from a legacy prose log. It exists
// only for importing journals written by older tooling; the structured
// entries file is authoritative. The parser is deliberately tolerant:
// optional fields may be absent, and a session id is recovered from the
// first token of the first line even when the header is malformed.
func ParseText(text string) []model.ProgressEntry {
	var entries []model.ProgressEntry

	for _, block := range splitBlocks(text) {
		lines := strings.Split(block, "\n")
		if len(lines) == 0 {
			continue
		}

		var e model.ProgressEntry
		header := strings.TrimSpace(lines[0])
		if rest, ok := strings.CutPrefix(header, "## Session:"); ok {
			e.SessionID = strings.TrimSpace(rest)
		} else {
			// Malformed header: take the first token of the first line.
			fields := strings.Fields(strings.TrimLeft(header, "#"))
			if len(fields) > 0 {
				e.SessionID = fields[0]
			}
		}
		if e.SessionID == "" {
			continue
		}

		for _, line := range lines[1:] {
			key, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			value = strings.TrimSpace(value)
			switch strings.TrimSpace(key) {
			case "Time":
				e.Timestamp = value
			case "Agent":
				if at, ok := model.ParseAgentType(value); ok {
					e.AgentType = at
				}
			case "Summary":
				e.Summary = value
			case "Feature":
				e.FeatureID = value
			case "Status":
				e.Status = value
			case "Files":
				e.FilesModified = splitList(value, ",")
			case "Tests":
				e.TestsRun, e.TestsPassed = parseTestCounts(value)
			case "Issues":
				e.Issues = splitList(value, ";")
			case "Next steps":
				e.NextSteps = value
			}
		}
		entries = append(entries, e)
	}
	return entries
}

func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "----") {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && len(current) == 0 {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			// Document title, not an entry.
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTestCounts reads "N run, M passed"; missing pieces read as zero.
func parseTestCounts(value string) (run, passed int) {
	for _, part := range strings.Split(value, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch fields[1] {
		case "run":
			run = n
		case "passed":
			passed = n
		}
	}
	return run, passed
}
