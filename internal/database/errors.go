package database

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by pool operations before a pool has been
// established (or after all candidates failed and nothing retried).
var ErrNotReady = errors.New("database: connection pool not established")

// CandidateError records why one connection candidate was rejected.
type CandidateError struct {
	Candidate Candidate
	Err       error
}

func (e CandidateError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Candidate.Source, e.Candidate.Addr(), e.Err)
}

func (e CandidateError) Unwrap() error { return e.Err }

// UnavailableError means no candidate endpoint was reachable. Error and
// Unwrap surface only the last attempt; Attempts keeps every candidate's
// failure for diagnostics.
type UnavailableError struct {
	attempts []CandidateError
}

func (e *UnavailableError) Error() string {
	last := e.attempts[len(e.attempts)-1]
	return fmt.Sprintf("storage unavailable: %d candidate(s) failed, last: %s", len(e.attempts), last.Error())
}

func (e *UnavailableError) Unwrap() error {
	return e.attempts[len(e.attempts)-1].Err
}

// Attempts returns one entry per failed candidate, in the order they were
// tried.
func (e *UnavailableError) Attempts() []CandidateError {
	out := make([]CandidateError, len(e.attempts))
	copy(out, e.attempts)
	return out
}
