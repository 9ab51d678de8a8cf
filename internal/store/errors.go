// Package store implements Foreman's persisted stores: the feature
// backlog, the human backlog, the test ledger, the session store, and the
// agent state file. All mutations are whole-file read-modify-write with
// atomic replace.
package store

import "errors"

var (
	// ErrNotFound is returned when a mutation names a record that does not
	// exist. Silently no-op'ing would hide real bugs.
	ErrNotFound = errors.New("record not found")

	// ErrCorruptData is returned when a persisted store is not well-formed.
	// The caller decides whether to reinitialize; stores never silently
	// fabricate records.
	ErrCorruptData = errors.New("corrupt store data")

	// ErrMissingStore is returned when a mutation targets a store file that
	// does not exist. This signals misconfiguration, not empty state.
	ErrMissingStore = errors.New("store file missing")

	// ErrVerificationIncomplete is returned when a completion is attempted
	// with evidence that reports failure.
	ErrVerificationIncomplete = errors.New("verification incomplete")

	// ErrMissingEvidence is returned when a test case is marked passing
	// without both evidence artifacts present on disk, or with a console
	// log containing a failure marker.
	ErrMissingEvidence = errors.New("missing or failing evidence")
)
