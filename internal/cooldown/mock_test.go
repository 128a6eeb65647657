package cooldown

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/communityfood/discovery-engine/internal/model"
)

// memStore is an in-memory EventStore with the same conflict rules as the
// SQL stores.
type memStore struct {
	mu     sync.Mutex
	events []*model.DiscoveryEvent
	err    error
}

func (m *memStore) InsertEvent(_ context.Context, ev *model.DiscoveryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, e := range m.events {
		if e.LocationHash == ev.LocationHash && e.Status == model.EventInProgress {
			return ErrRunInProgress
		}
	}
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *memStore) CompleteEvent(_ context.Context, id string, status model.EventStatus, resultCount int, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID != id {
			continue
		}
		if e.Status != model.EventInProgress {
			return ErrAlreadyFinalized
		}
		e.Status = status
		e.ResultCount = resultCount
		e.CompletedAt = &completedAt
		return nil
	}
	return ErrAlreadyFinalized
}

func (m *memStore) LatestEventSince(_ context.Context, locationHash string, since time.Time) (*model.DiscoveryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var latest *model.DiscoveryEvent
	for _, e := range m.events {
		if e.LocationHash != locationHash || e.SearchedAt.Before(since) {
			continue
		}
		if latest == nil || e.SearchedAt.After(latest.SearchedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memStore) ListEvents(_ context.Context, limit int) ([]model.DiscoveryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DiscoveryEvent, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SearchedAt.After(out[j].SearchedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) backdate(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.SearchedAt = e.SearchedAt.Add(-d)
		}
	}
}
