package store

import (
	"context"
	"errors"
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/scoring"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// EventStore is an append-only analytics event log.
type EventStore interface {
	AppendEvents(ctx context.Context, events []types.Event) error
	// ListEvents returns events stamped at or after since, oldest first.
	// The zero time lists everything.
	ListEvents(ctx context.Context, since time.Time) ([]types.Event, error)
}

// ResultStore persists completed quiz results.
type ResultStore interface {
	SaveResult(ctx context.Context, r scoring.QuizResult) error
	GetResult(ctx context.Context, id string) (scoring.QuizResult, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	EventStore
	ResultStore
	Close() error
}
