package sync

import (
	"time"

	"github.com/google/uuid"
)

// SyncSession lives for exactly one dispatch. It carries the identity used by the
// collaborators and remembers the first error reported during the dispatch.
type SyncSession struct {
	ID         string
	Action     SyncAction
	Identity   *Identity
	Database   Database
	Background bool
	StartedAt  time.Time

	err        error
	errCode    string
	errMessage string
	failures   int
}

func newSyncSession(action SyncAction, db Database, background bool, now time.Time) *SyncSession {
	return &SyncSession{
		ID:         uuid.NewString(),
		Action:     action,
		Database:   db,
		Background: background,
		StartedAt:  now,
	}
}

// Fail records err. Only the first error is kept for the finish event; later
// ones are counted.
func (s *SyncSession) Fail(err error) {
	if err == nil {
		return
	}
	s.failures++
	if s.err != nil {
		return
	}
	s.err = err
	s.errCode, s.errMessage = errorDetails(err)
}

func (s *SyncSession) Err() error           { return s.err }
func (s *SyncSession) ErrorCode() string    { return s.errCode }
func (s *SyncSession) ErrorMessage() string { return s.errMessage }
func (s *SyncSession) Failures() int        { return s.failures }
