package model

// TestLedgerFile is the persisted test case collection. TotalCount and
// PassedCount are caches and must equal a recount over Cases.
type TestLedgerFile struct {
	Version     string     `json:"version"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	TotalCount  int        `json:"total_count"`
	PassedCount int        `json:"passed_count"`
	Cases       []TestCase `json:"cases"`
}

// TestCase is a granular test requiring evidence on disk before it may be
// marked passing.
type TestCase struct {
	ID             string          `json:"id"`
	Category       FeatureCategory `json:"category"`
	Description    string          `json:"description"`
	Steps          []string        `json:"steps"`
	Passes         bool            `json:"passes"`
	Priority       BacklogPriority `json:"priority"`
	VerifiedAt     *string         `json:"verified_at,omitempty"`
	ScreenshotPath string          `json:"screenshot_path,omitempty"`
	ConsoleLogPath string          `json:"console_log_path,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// TestEvidence is the artifact pair required to mark a test case passing.
type TestEvidence struct {
	ScreenshotPath string
	ConsoleLogPath string
	Notes          string
}

// Recount returns the number of cases with Passes == true.
func (tl *TestLedgerFile) Recount() int {
	n := 0
	for i := range tl.Cases {
		if tl.Cases[i].Passes {
			n++
		}
	}
	return n
}

// Find returns the index of the case with the given id, or -1.
func (tl *TestLedgerFile) Find(id string) int {
	for i := range tl.Cases {
		if tl.Cases[i].ID == id {
			return i
		}
	}
	return -1
}
