// Package history computes windowed conversation metrics directly
// over a session store.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/udit-pandey/kairon/internal/store"
)

var (
	// ErrInvalidSender reports an empty or whitespace-only sender id.
	ErrInvalidSender = errors.New("sender_id cannot be empty")
	// ErrDataSource reports a session store connection or query
	// failure.
	ErrDataSource = errors.New("session store unavailable")
)

// Engine answers history queries for one tenant by opening a scoped
// connection to that tenant's session store per operation. Engines
// are cheap to construct; create one per request.
type Engine struct {
	dbPath string
	tenant string
	now    func() time.Time
	open   func(path string) (*store.DB, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow overrides the clock used for window cutoffs.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithOpen overrides how the engine opens the session store.
func WithOpen(open func(path string) (*store.DB, error)) Option {
	return func(e *Engine) { e.open = open }
}

// NewEngine creates an engine over the session store at dbPath,
// scoped to one tenant's sessions.
func NewEngine(dbPath, tenant string, opts ...Option) *Engine {
	e := &Engine{
		dbPath: dbPath,
		tenant: tenant,
		now:    time.Now,
		open:   store.Open,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// withStore opens a scoped store connection, runs fn, and releases
// the connection unconditionally.
func (e *Engine) withStore(fn func(db *store.DB) error) error {
	db, err := e.open(e.dbPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	defer db.Close()

	if err := fn(db); err != nil {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDataSource, err)
	}
	return nil
}

// ListUsers returns the sender ids with at least one event inside
// the window. The order is whatever the store yields; callers must
// not rely on it.
func (e *Engine) ListUsers(ctx context.Context, w Window) ([]string, error) {
	cutoff := w.CutoffAt(e.now())
	var users []string
	err := e.withStore(func(db *store.DB) error {
		var err error
		users, err = db.Senders(ctx, e.tenant, cutoff)
		return err
	})
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// UserHistory returns one sender's windowed user, bot, and action
// events in recorded order. A sender with no matching session
// yields an empty sequence, not an error.
func (e *Engine) UserHistory(
	ctx context.Context, w Window, sender string,
) ([]store.Event, error) {
	if strings.TrimSpace(sender) == "" {
		return nil, ErrInvalidSender
	}

	cutoff := w.CutoffAt(e.now())
	var events []store.Event
	err := e.withStore(func(db *store.DB) error {
		var err error
		events, err = db.SenderEvents(ctx, e.tenant, sender, cutoff,
			[]string{store.KindUser, store.KindBot, store.KindAction})
		return err
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []store.Event{}
	}
	return events, nil
}

// VisitorFallback counts windowed action events: total executions
// and those whose name contains "fallback". The substring match is
// deliberately permissive; "fallback_recovery_handler" counts.
func (e *Engine) VisitorFallback(
	ctx context.Context, w Window,
) (FallbackMetric, error) {
	cutoff := w.CutoffAt(e.now())
	var metric FallbackMetric
	err := e.withStore(func(db *store.DB) error {
		actions, err := db.TenantEvents(ctx, e.tenant, cutoff,
			[]string{store.KindAction})
		if err != nil {
			return err
		}
		for _, a := range actions {
			metric.TotalCount++
			if strings.Contains(strings.ToLower(a.Name), "fallback") {
				metric.FallbackCount++
			}
		}
		return nil
	})
	if err != nil {
		return FallbackMetric{}, err
	}
	return metric, nil
}

// ConversationSteps counts each sender's user-to-bot turn pairs in
// the window. Senders with no qualifying pair are omitted.
func (e *Engine) ConversationSteps(
	ctx context.Context, w Window,
) ([]StepMetric, error) {
	stats, err := e.senderPairStats(ctx, w)
	if err != nil {
		return nil, err
	}
	metrics := []StepMetric{}
	for _, s := range stats {
		metrics = append(metrics, StepMetric{SenderID: s.sender, Steps: s.steps})
	}
	return metrics, nil
}

// ConversationTime sums each sender's bot-minus-user timestamp
// deltas over the same pairs ConversationSteps counts.
func (e *Engine) ConversationTime(
	ctx context.Context, w Window,
) ([]TimeMetric, error) {
	stats, err := e.senderPairStats(ctx, w)
	if err != nil {
		return nil, err
	}
	metrics := []TimeMetric{}
	for _, s := range stats {
		metrics = append(metrics, TimeMetric{SenderID: s.sender, Time: s.time})
	}
	return metrics, nil
}

// UserMetrics combines steps, time, and the latest windowed event
// timestamp per sender in a single pass. Unlike the other
// operations it degrades to an empty result on store failure: the
// overview it feeds favors availability over completeness.
func (e *Engine) UserMetrics(
	ctx context.Context, w Window,
) ([]UserMetric, error) {
	stats, err := e.senderPairStats(ctx, w)
	if err != nil {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Printf("user metrics for %s: %v", e.tenant, err)
		return []UserMetric{}, nil
	}
	metrics := []UserMetric{}
	for _, s := range stats {
		metrics = append(metrics, UserMetric{
			SenderID:        s.sender,
			Steps:           s.steps,
			Time:            s.time,
			LatestEventTime: s.latest,
		})
	}
	return metrics, nil
}

// senderPairStats scans the windowed user/bot event stream once and
// accumulates per-sender pair counts, time sums, and the latest
// event timestamp. Pairing runs over the user/bot-filtered
// subsequence: an action event between a user turn and the bot's
// reply does not break their adjacency. Senders without a single
// user-to-bot pair are dropped.
func (e *Engine) senderPairStats(
	ctx context.Context, w Window,
) ([]pairStats, error) {
	cutoff := w.CutoffAt(e.now())
	var all []store.SenderEvent
	err := e.withStore(func(db *store.DB) error {
		var err error
		all, err = db.TenantEvents(ctx, e.tenant, cutoff,
			[]string{store.KindUser, store.KindBot})
		return err
	})
	if err != nil {
		return nil, err
	}

	var stats []pairStats
	for start := 0; start < len(all); {
		end := start
		for end < len(all) && all[end].SenderID == all[start].SenderID {
			end++
		}
		if s, ok := accumulate(all[start:end]); ok {
			stats = append(stats, s)
		}
		start = end
	}
	return stats, nil
}

type pairStats struct {
	sender string
	steps  int
	time   float64
	latest float64
}

// accumulate folds one sender's ordered user/bot events into pair
// stats. ok is false when the sender has no user-to-bot pair.
func accumulate(events []store.SenderEvent) (pairStats, bool) {
	s := pairStats{sender: events[0].SenderID}
	for _, ev := range events {
		if ev.Timestamp > s.latest {
			s.latest = ev.Timestamp
		}
	}
	for i := 0; i+1 < len(events); i++ {
		if events[i].Kind == store.KindUser && events[i+1].Kind == store.KindBot {
			s.steps++
			s.time += events[i+1].Timestamp - events[i].Timestamp
		}
	}
	return s, s.steps > 0
}
