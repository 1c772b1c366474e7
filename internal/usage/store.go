// Package usage tracks API key authentication and per-request usage
// accounting for the correction service.
//
// Every authenticated correction request produces one [Record]: opened in
// StatusInProgress when the request is accepted and finished with
// StatusSuccess or StatusFailed when it completes. Records carry only
// anonymised sizes, never document content.
package usage

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a usage record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// Done reports whether the record reached a terminal state.
func (s Status) Done() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrUnauthorized is returned by [Store.Authenticate] when the presented
// key is unknown or inactive.
var ErrUnauthorized = errors.New("usage: unknown or inactive api key")

// APIKey identifies an organisation's credential. The secret itself is
// never stored or returned, only a hash and a display prefix.
type APIKey struct {
	ID           int64
	Organisation string

	// Prefix is the first characters of the key, kept for display and
	// support purposes.
	Prefix string

	Active  bool
	Created time.Time
}

// Record is one correction request's accounting entry.
type Record struct {
	ID    int64
	KeyID int64

	// Method names the correction operation, e.g. "manual".
	Method string

	// SourceSize and CorrectedSize are byte counts of the request and
	// response documents.
	SourceSize    int
	CorrectedSize int

	Status  Status
	Created time.Time
}

// Store persists API keys and usage records.
//
// Implementations must be safe for concurrent use. [Postgres] is the
// production implementation; [MemStore] serves tests and deployments
// without a database.
type Store interface {
	// Authenticate resolves a presented secret to its key. Returns
	// [ErrUnauthorized] when the key is unknown or inactive.
	Authenticate(ctx context.Context, secret string) (APIKey, error)

	// Begin opens a usage record in StatusInProgress and returns its ID.
	Begin(ctx context.Context, keyID int64, method string, sourceSize int) (int64, error)

	// Finish moves a record to a terminal status and stores the response
	// size. Finishing an unknown record is an error.
	Finish(ctx context.Context, recordID int64, status Status, correctedSize int) error

	// Close releases the store's resources.
	Close()
}
