package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
)

// TestLedger persists granular test cases. A case may only be marked
// passing with evidence artifacts that exist on disk and a console log
// free of failure markers; this is enforced here at the mutation boundary,
// not by convention.
type TestLedger struct {
	path           string
	lockMap        *lock.MutexMap
	failureMarkers []string
}

func NewTestLedger(path string, lockMap *lock.MutexMap, failureMarkers []string) *TestLedger {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	if len(failureMarkers) == 0 {
		failureMarkers = []string{"ERROR", "FAILED", "Exception", "Traceback"}
	}
	return &TestLedger{path: path, lockMap: lockMap, failureMarkers: failureMarkers}
}

// Load reads the ledger. Missing file degrades to an empty ledger.
func (l *TestLedger) Load() (model.TestLedgerFile, error) {
	var tl model.TestLedgerFile
	err := jsonfile.Read(l.path, &tl)
	if os.IsNotExist(err) {
		return model.TestLedgerFile{}, nil
	}
	if err != nil {
		return model.TestLedgerFile{}, fmt.Errorf("%w: %s: %v", ErrCorruptData, l.path, err)
	}
	return tl, nil
}

// MarkPassing flips a case to passing after checking the evidence: both
// artifact paths must exist on disk and the console log must not contain a
// failure marker. On rejection the record is left unchanged.
func (l *TestLedger) MarkPassing(id string, ev model.TestEvidence) error {
	l.lockMap.Lock(l.path)
	defer l.lockMap.Unlock(l.path)

	tl, err := l.loadForMutation()
	if err != nil {
		return err
	}

	idx := tl.Find(id)
	if idx < 0 {
		return fmt.Errorf("%w: test case %s", ErrNotFound, id)
	}

	if ev.ScreenshotPath == "" || ev.ConsoleLogPath == "" {
		return fmt.Errorf("%w: test %s: both evidence paths are required", ErrMissingEvidence, id)
	}
	if _, err := os.Stat(ev.ScreenshotPath); err != nil {
		return fmt.Errorf("%w: test %s: screenshot %s not on disk", ErrMissingEvidence, id, ev.ScreenshotPath)
	}
	logContent, err := os.ReadFile(ev.ConsoleLogPath)
	if err != nil {
		return fmt.Errorf("%w: test %s: console log %s not readable", ErrMissingEvidence, id, ev.ConsoleLogPath)
	}
	for _, marker := range l.failureMarkers {
		if strings.Contains(string(logContent), marker) {
			return fmt.Errorf("%w: test %s: console log contains failure marker %q", ErrMissingEvidence, id, marker)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	tl.Cases[idx].Passes = true
	tl.Cases[idx].VerifiedAt = &now
	tl.Cases[idx].ScreenshotPath = ev.ScreenshotPath
	tl.Cases[idx].ConsoleLogPath = ev.ConsoleLogPath
	tl.Cases[idx].Notes = ev.Notes
	l.refreshCounts(&tl)

	return jsonfile.Write(l.path, tl)
}

// MarkFailing clears the verification fields of a case.
func (l *TestLedger) MarkFailing(id string) error {
	l.lockMap.Lock(l.path)
	defer l.lockMap.Unlock(l.path)

	tl, err := l.loadForMutation()
	if err != nil {
		return err
	}

	idx := tl.Find(id)
	if idx < 0 {
		return fmt.Errorf("%w: test case %s", ErrNotFound, id)
	}

	tl.Cases[idx].Passes = false
	tl.Cases[idx].VerifiedAt = nil
	tl.Cases[idx].ScreenshotPath = ""
	tl.Cases[idx].ConsoleLogPath = ""
	tl.Cases[idx].Notes = ""
	l.refreshCounts(&tl)

	return jsonfile.Write(l.path, tl)
}

// Save replaces the whole ledger, refreshing caches and the updated stamp.
func (l *TestLedger) Save(tl model.TestLedgerFile) error {
	l.lockMap.Lock(l.path)
	defer l.lockMap.Unlock(l.path)

	l.refreshCounts(&tl)
	return jsonfile.Write(l.path, tl)
}

func (l *TestLedger) refreshCounts(tl *model.TestLedgerFile) {
	tl.TotalCount = len(tl.Cases)
	tl.PassedCount = tl.Recount()
	tl.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}

func (l *TestLedger) loadForMutation() (model.TestLedgerFile, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return model.TestLedgerFile{}, fmt.Errorf("%w: %s", ErrMissingStore, l.path)
	}
	var tl model.TestLedgerFile
	if err := jsonfile.Read(l.path, &tl); err != nil {
		return model.TestLedgerFile{}, fmt.Errorf("%w: %s: %v", ErrCorruptData, l.path, err)
	}
	return tl, nil
}
