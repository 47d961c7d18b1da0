package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quizfunnel/quizfunnel/pkg/types"
	"github.com/quizfunnel/quizfunnel/server/internal/config"
	"github.com/quizfunnel/quizfunnel/server/internal/store"
)

// maxEventNameLen caps event names. Anything longer is rejected.
const maxEventNameLen = 200

// maxClockSkew is how far into the future an event timestamp may be.
const maxClockSkew = 5 * time.Minute

var (
	// ErrRateLimited is returned when the intake token bucket is empty.
	ErrRateLimited = errors.New("receiver: rate limit exceeded")

	// ErrBatchTooLarge is returned when a batch exceeds the configured cap.
	ErrBatchTooLarge = errors.New("receiver: batch too large")

	// ErrEmptyBatch is returned for a batch with no events.
	ErrEmptyBatch = errors.New("receiver: empty batch")
)

// Rejection describes one event dropped during validation.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result summarises one intake call.
type Result struct {
	Accepted int         `json:"accepted"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Receiver validates incoming funnel events and appends the valid ones to an
// event store.
type Receiver struct {
	store    store.EventStore
	limiter  *rate.Limiter
	maxBatch int
	now      func() time.Time
}

// New creates a Receiver writing to st and throttled by cfg. A zero
// RatePerSecond disables throttling; a zero MaxBatch disables the cap.
func New(st store.EventStore, cfg config.IngestConfig) *Receiver {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Receiver{
		store:    st,
		limiter:  rate.NewLimiter(limit, burst),
		maxBatch: cfg.MaxBatch,
		now:      time.Now,
	}
}

// SetLimits swaps the throttle settings in place, keeping the current bucket.
func (r *Receiver) SetLimits(cfg config.IngestConfig) {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	r.limiter.SetLimit(limit)
	if cfg.Burst > 0 {
		r.limiter.SetBurst(cfg.Burst)
	}
}

// Receive validates events and stores the ones that pass. Invalid events are
// reported in Result.Rejected; they never fail the whole batch. The returned
// error is non-nil only for throttling, batch-level problems or a store
// failure, in which case nothing was stored.
func (r *Receiver) Receive(ctx context.Context, events []types.Event) (Result, error) {
	if !r.limiter.Allow() {
		return Result{}, ErrRateLimited
	}
	if len(events) == 0 {
		return Result{}, ErrEmptyBatch
	}
	if r.maxBatch > 0 && len(events) > r.maxBatch {
		return Result{}, fmt.Errorf("%w: %d events, limit %d", ErrBatchTooLarge, len(events), r.maxBatch)
	}

	now := r.now()
	var res Result
	accepted := make([]types.Event, 0, len(events))
	for i, ev := range events {
		ev.EventName = strings.TrimSpace(ev.EventName)
		if reason := validate(ev, now); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Reason: reason})
			continue
		}
		accepted = append(accepted, ev)
	}

	if len(accepted) > 0 {
		if err := r.store.AppendEvents(ctx, accepted); err != nil {
			return Result{}, fmt.Errorf("receiver: append: %w", err)
		}
	}
	res.Accepted = len(accepted)

	slog.Debug("receiver: events stored",
		"accepted", res.Accepted,
		"rejected", len(res.Rejected),
	)
	return res, nil
}

// validate returns a rejection reason, or "" when ev is acceptable.
func validate(ev types.Event, now time.Time) string {
	switch {
	case ev.EventName == "":
		return "eventName is required"
	case len(ev.EventName) > maxEventNameLen:
		return fmt.Sprintf("eventName longer than %d bytes", maxEventNameLen)
	case ev.Timestamp.IsZero():
		return "timestamp is required"
	case ev.Timestamp.After(now.Add(maxClockSkew)):
		return "timestamp is in the future"
	}
	return ""
}
