// Package cooldown gates discovery runs per area. Any run logged for a
// location hash inside the window, finished or not, blocks another.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/model"
)

// DefaultWindow is how long a run blocks re-searching the same area.
const DefaultWindow = 30 * 24 * time.Hour

var (
	// ErrRunInProgress is returned by LogStart when another run for the same
	// location hash is already in progress.
	ErrRunInProgress = eris.New("cooldown: run already in progress")
	// ErrAlreadyFinalized is returned by LogComplete when the event is no
	// longer in progress.
	ErrAlreadyFinalized = eris.New("cooldown: event already finalized")
	// ErrNotTerminal is returned by LogComplete for a non-terminal status.
	ErrNotTerminal = eris.New("cooldown: status is not terminal")
)

// EventStore persists discovery events. InsertEvent must fail with
// ErrRunInProgress if an in-progress event already exists for the hash;
// CompleteEvent must fail with ErrAlreadyFinalized if the event is not in
// progress.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *model.DiscoveryEvent) error
	CompleteEvent(ctx context.Context, id string, status model.EventStatus, resultCount int, completedAt time.Time) error
	LatestEventSince(ctx context.Context, locationHash string, since time.Time) (*model.DiscoveryEvent, error)
	ListEvents(ctx context.Context, limit int) ([]model.DiscoveryEvent, error)
}

// Eligibility is the answer to "may this area be searched now?".
type Eligibility struct {
	ShouldSearch   bool                  `json:"should_search"`
	Reason         string                `json:"reason,omitempty"`
	LastEvent      *model.DiscoveryEvent `json:"last_event,omitempty"`
	NextEligibleAt *time.Time            `json:"next_eligible_at,omitempty"`
}

// Option configures a Guard.
type Option func(*Guard)

// WithWindow overrides the cooldown window.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard is the cooldown circuit breaker. It never starts a search itself:
// callers check eligibility, then call LogStart right before searching.
type Guard struct {
	store  EventStore
	window time.Duration
	now    func() time.Time
}

// NewGuard creates a Guard over store.
func NewGuard(store EventStore, opts ...Option) *Guard {
	g := &Guard{store: store, window: DefaultWindow, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Window returns the configured cooldown window.
func (g *Guard) Window() time.Duration { return g.window }

// CheckEligibility reports whether locationHash may be searched now.
func (g *Guard) CheckEligibility(ctx context.Context, locationHash string) (Eligibility, error) {
	since := g.now().Add(-g.window)
	ev, err := g.store.LatestEventSince(ctx, locationHash, since)
	if err != nil {
		return Eligibility{}, eris.Wrapf(err, "cooldown: latest event for %s", locationHash)
	}
	if ev == nil {
		return Eligibility{ShouldSearch: true}, nil
	}

	next := ev.SearchedAt.Add(g.window)
	reason := fmt.Sprintf("%s searched %s ago (%s)", locationHash, g.now().Sub(ev.SearchedAt).Round(time.Minute), ev.Status)
	if ev.Status == model.EventInProgress {
		reason = fmt.Sprintf("%s has a discovery run in progress", locationHash)
	}
	return Eligibility{
		ShouldSearch:   false,
		Reason:         reason,
		LastEvent:      ev,
		NextEligibleAt: &next,
	}, nil
}

// LogStart records an in-progress run and returns its event ID.
func (g *Guard) LogStart(ctx context.Context, locationHash string, userID *string, provider string, metadata map[string]any) (string, error) {
	ev := &model.DiscoveryEvent{
		ID:           uuid.NewString(),
		LocationHash: locationHash,
		Status:       model.EventInProgress,
		Provider:     provider,
		UserID:       userID,
		Metadata:     metadata,
		SearchedAt:   g.now().UTC(),
	}
	if err := g.store.InsertEvent(ctx, ev); err != nil {
		return "", eris.Wrapf(err, "cooldown: log start for %s", locationHash)
	}

	zap.L().Info("discovery run started",
		zap.String("event_id", ev.ID),
		zap.String("location_hash", locationHash),
		zap.String("provider", provider),
	)
	return ev.ID, nil
}

// LogComplete finalizes a run. It must be called exactly once per event.
func (g *Guard) LogComplete(ctx context.Context, eventID string, status model.EventStatus, resourcesFound int) error {
	if !status.IsTerminal() {
		return eris.Wrapf(ErrNotTerminal, "status %q", status)
	}
	if err := g.store.CompleteEvent(ctx, eventID, status, resourcesFound, g.now().UTC()); err != nil {
		return eris.Wrapf(err, "cooldown: log complete for %s", eventID)
	}

	zap.L().Info("discovery run finished",
		zap.String("event_id", eventID),
		zap.String("status", string(status)),
		zap.Int("resources_found", resourcesFound),
	)
	return nil
}

// Recent returns the most recent events, newest first.
func (g *Guard) Recent(ctx context.Context, limit int) ([]model.DiscoveryEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	events, err := g.store.ListEvents(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "cooldown: list events")
	}
	return events, nil
}
