// Package chathistory is the single entry point for history
// queries: it resolves a tenant's endpoint, dispatches to the local
// aggregation engine or the remote proxy client, and enriches raw
// events into display records.
package chathistory

import (
	"context"

	"github.com/udit-pandey/kairon/internal/endpoint"
	"github.com/udit-pandey/kairon/internal/history"
	"github.com/udit-pandey/kairon/internal/remote"
	"github.com/udit-pandey/kairon/internal/store"
	"github.com/udit-pandey/kairon/internal/trainingdata"
)

// Backend answers the five history operations. Both the local
// engine and the remote proxy client satisfy it; the facade treats
// them as interchangeable.
type Backend interface {
	ListUsers(ctx context.Context, w history.Window) ([]string, error)
	UserHistory(ctx context.Context, w history.Window, sender string) ([]store.Event, error)
	VisitorFallback(ctx context.Context, w history.Window) (history.FallbackMetric, error)
	ConversationSteps(ctx context.Context, w history.Window) ([]history.StepMetric, error)
	ConversationTime(ctx context.Context, w history.Window) ([]history.TimeMetric, error)
	UserMetrics(ctx context.Context, w history.Window) ([]history.UserMetric, error)
}

// Facade resolves endpoints and dispatches history queries.
type Facade struct {
	resolver *endpoint.Resolver
	training trainingdata.Lookup

	// newLocal and newRemote build per-request backends; tests
	// substitute them to observe dispatch.
	newLocal  func(d endpoint.Descriptor, tenant string) Backend
	newRemote func(d endpoint.Descriptor) Backend
}

// Option configures a Facade.
type Option func(*Facade)

// WithLocalBackend overrides local backend construction.
func WithLocalBackend(f func(d endpoint.Descriptor, tenant string) Backend) Option {
	return func(fc *Facade) { fc.newLocal = f }
}

// WithRemoteBackend overrides remote backend construction.
func WithRemoteBackend(f func(d endpoint.Descriptor) Backend) Option {
	return func(fc *Facade) { fc.newRemote = f }
}

// New creates a Facade over the given resolver and training-example
// lookup.
func New(
	resolver *endpoint.Resolver,
	training trainingdata.Lookup,
	opts ...Option,
) *Facade {
	f := &Facade{
		resolver: resolver,
		training: training,
		newLocal: func(d endpoint.Descriptor, tenant string) Backend {
			return history.NewEngine(d.DB, tenant)
		},
		newRemote: func(d endpoint.Descriptor) Backend {
			return remote.NewClient(d.URL, d.Token)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// backend resolves the tenant's endpoint and builds the matching
// backend. The descriptor's mode was validated at resolution, so
// only the two known modes reach the switch.
func (f *Facade) backend(tenant string) (Backend, error) {
	d, err := f.resolver.Resolve(tenant)
	if err != nil {
		return nil, err
	}
	if d.Mode == endpoint.ModeRemote {
		return f.newRemote(d), nil
	}
	return f.newLocal(d, tenant), nil
}

// ListUsers lists the tenant's senders active inside the window.
func (f *Facade) ListUsers(
	ctx context.Context, tenant string, w history.Window,
) ([]string, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return nil, err
	}
	return b.ListUsers(ctx, w)
}

// UserHistory fetches one sender's raw windowed events and returns
// the enrichment iterator over them.
func (f *Facade) UserHistory(
	ctx context.Context, tenant string, w history.Window, sender string,
) (*Iterator, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return nil, err
	}
	events, err := b.UserHistory(ctx, w, sender)
	if err != nil {
		return nil, err
	}
	examples, err := f.training.Examples(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return NewIterator(events, examples), nil
}

// VisitorFallback returns the tenant's windowed fallback metric.
func (f *Facade) VisitorFallback(
	ctx context.Context, tenant string, w history.Window,
) (history.FallbackMetric, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return history.FallbackMetric{}, err
	}
	return b.VisitorFallback(ctx, w)
}

// ConversationSteps returns the tenant's per-sender step metrics.
func (f *Facade) ConversationSteps(
	ctx context.Context, tenant string, w history.Window,
) ([]history.StepMetric, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return nil, err
	}
	return b.ConversationSteps(ctx, w)
}

// ConversationTime returns the tenant's per-sender time metrics.
func (f *Facade) ConversationTime(
	ctx context.Context, tenant string, w history.Window,
) ([]history.TimeMetric, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return nil, err
	}
	return b.ConversationTime(ctx, w)
}

// UserMetrics returns the tenant's combined per-sender metrics.
func (f *Facade) UserMetrics(
	ctx context.Context, tenant string, w history.Window,
) ([]history.UserMetric, error) {
	b, err := f.backend(tenant)
	if err != nil {
		return nil, err
	}
	return b.UserMetrics(ctx, w)
}
