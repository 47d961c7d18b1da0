package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/scoring"
)

// Memory is a thread-safe in-memory Store. Events older than the retention
// window are dropped by Evict, which Run calls periodically. Results are
// never evicted.
type Memory struct {
	mu        sync.RWMutex
	events    []types.Event
	results   map[string]scoring.QuizResult
	retention time.Duration
}

// NewMemory creates a Memory store. A zero retention keeps events forever.
func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		results:   make(map[string]scoring.QuizResult),
		retention: retention,
	}
}

// AppendEvents adds events to the log, keeping it ordered by timestamp.
func (m *Memory) AppendEvents(_ context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	sort.SliceStable(m.events, func(i, j int) bool {
		return m.events[i].Timestamp.Before(m.events[j].Timestamp)
	})
	return nil
}

// ListEvents returns a copy of the events stamped at or after since.
func (m *Memory) ListEvents(_ context.Context, since time.Time) ([]types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := sort.Search(len(m.events), func(i int) bool {
		return !m.events[i].Timestamp.Before(since)
	})
	out := make([]types.Event, len(m.events)-start)
	copy(out, m.events[start:])
	return out, nil
}

// SaveResult stores r under its id, replacing any previous result.
func (m *Memory) SaveResult(_ context.Context, r scoring.QuizResult) error {
	if r.ID == "" {
		return fmt.Errorf("store: save result: id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r
	return nil
}

// GetResult returns the result stored under id, or ErrNotFound.
func (m *Memory) GetResult(_ context.Context, id string) (scoring.QuizResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return scoring.QuizResult{}, ErrNotFound
	}
	return r, nil
}

// Count returns the number of events currently held.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Evict removes events stamped before now minus the retention window and
// returns how many were removed.
func (m *Memory) Evict(now time.Time) int {
	if m.retention <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.retention)
	n := sort.Search(len(m.events), func(i int) bool {
		return !m.events[i].Timestamp.Before(cutoff)
	})
	if n == 0 {
		return 0
	}
	m.events = append([]types.Event(nil), m.events[n:]...)
	return n
}

// Run starts the background eviction loop. It ticks at a tenth of the
// retention window, clamped to between one second and one hour. Run blocks
// until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) {
	if m.retention <= 0 {
		<-ctx.Done()
		return
	}
	interval := m.retention / 10
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Hour {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Evict(now); n > 0 {
				slog.Debug("store: evicted expired events", "count", n)
			}
		}
	}
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error { return nil }
