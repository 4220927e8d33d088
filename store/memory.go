package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/policywatch/policywatch/sdk"
)

// MemoryStore is a map-backed Store used by tests and local agent runs
// without a database. InTx offers no rollback; the single-writer model
// of the scheduler makes that acceptable outside production.
type MemoryStore struct {
	lock sync.RWMutex

	sources       map[int64]*sdk.Source
	versions      map[int64]*sdk.PolicyVersion
	changes       map[int64]*sdk.PolicyChange
	subscriptions map[int64]*sdk.RouteSubscription

	nextSourceID       int64
	nextVersionID      int64
	nextChangeID       int64
	nextSubscriptionID int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources:       make(map[int64]*sdk.Source),
		versions:      make(map[int64]*sdk.PolicyVersion),
		changes:       make(map[int64]*sdk.PolicyChange),
		subscriptions: make(map[int64]*sdk.RouteSubscription),
	}
}

// AddSource validates and stores a source, assigning its ID.
func (m *MemoryStore) AddSource(s *sdk.Source) (*sdk.Source, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.nextSourceID++
	cp := *s
	cp.ID = m.nextSourceID
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.sources[cp.ID] = &cp

	return &cp, nil
}

// AddSubscription validates and stores a subscription, assigning its
// ID.
func (m *MemoryStore) AddSubscription(r *sdk.RouteSubscription) (*sdk.RouteSubscription, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	m.nextSubscriptionID++
	cp := *r
	cp.ID = m.nextSubscriptionID
	m.subscriptions[cp.ID] = &cp

	return &cp, nil
}

// GetSource returns a copy of the stored source.
func (m *MemoryStore) GetSource(id int64) (*sdk.Source, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	s, ok := m.sources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// GetChange returns a copy of the stored change.
func (m *MemoryStore) GetChange(id int64) (*sdk.PolicyChange, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	c, ok := m.changes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// VersionCount returns the number of stored versions for the source.
func (m *MemoryStore) VersionCount(sourceID int64) int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	count := 0
	for _, v := range m.versions {
		if v.SourceID == sourceID {
			count++
		}
	}
	return count
}

// ChangesForSource returns copies of the source's changes in insertion
// order.
func (m *MemoryStore) ChangesForSource(sourceID int64) []*sdk.PolicyChange {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var out []*sdk.PolicyChange
	for _, c := range m.changes {
		if c.SourceID == sourceID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ChangeCount returns the number of stored changes for the source.
func (m *MemoryStore) ChangeCount(sourceID int64) int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	count := 0
	for _, c := range m.changes {
		if c.SourceID == sourceID {
			count++
		}
	}
	return count
}

func (m *MemoryStore) ActiveSourcesByFrequency(_ context.Context, freq sdk.CheckFrequency) ([]*sdk.Source, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var out []*sdk.Source
	for _, s := range m.sources {
		if s.IsActive && s.CheckFrequency == freq {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) LatestVersion(_ context.Context, sourceID int64) (*sdk.PolicyVersion, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.latestVersionLocked(sourceID), nil
}

func (m *MemoryStore) latestVersionLocked(sourceID int64) *sdk.PolicyVersion {
	var latest *sdk.PolicyVersion
	for _, v := range m.versions {
		if v.SourceID != sourceID {
			continue
		}
		if latest == nil || v.ID > latest.ID {
			latest = v
		}
	}
	if latest == nil {
		return nil
	}
	cp := *latest
	return &cp
}

func (m *MemoryStore) AppendVersion(_ context.Context, v *sdk.PolicyVersion) (*sdk.PolicyVersion, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if latest := m.latestVersionLocked(v.SourceID); latest != nil && latest.ContentHash == v.ContentHash {
		return nil, ErrDuplicateVersion
	}

	m.nextVersionID++
	cp := *v
	cp.ID = m.nextVersionID
	cp.CreatedAt = time.Now().UTC()
	m.versions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *MemoryStore) AppendChange(_ context.Context, c *sdk.PolicyChange) (*sdk.PolicyChange, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.versions[c.NewVersionID]; !ok {
		return nil, ErrNotFound
	}

	m.nextChangeID++
	cp := *c
	cp.ID = m.nextChangeID
	cp.CreatedAt = time.Now().UTC()
	m.changes[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (m *MemoryStore) MarkAlertSent(_ context.Context, changeID int64, ts time.Time) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	c, ok := m.changes[changeID]
	if !ok {
		return ErrNotFound
	}
	c.AlertSentAt = &ts
	return nil
}

func (m *MemoryStore) UpdateSource(_ context.Context, sourceID int64, update SourceUpdate) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.sources[sourceID]
	if !ok {
		return ErrNotFound
	}

	if update.LastCheckedAt != nil {
		t := *update.LastCheckedAt
		s.LastCheckedAt = &t
	}
	if update.LastChangeDetectedAt != nil {
		t := *update.LastChangeDetectedAt
		s.LastChangeDetectedAt = &t
	}
	if update.ConsecutiveFetchFailures != nil {
		s.ConsecutiveFetchFailures = *update.ConsecutiveFetchFailures
	}
	if update.ConsecutiveEmailFailures != nil {
		s.ConsecutiveEmailFailures = *update.ConsecutiveEmailFailures
	}
	if update.LastFetchError != nil {
		s.LastFetchError = *update.LastFetchError
	}
	if update.LastEmailError != nil {
		s.LastEmailError = *update.LastEmailError
	}
	s.UpdatedAt = time.Now().UTC()

	return nil
}

func (m *MemoryStore) ActiveSubscriptionsForSource(_ context.Context, source *sdk.Source) ([]*sdk.RouteSubscription, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var out []*sdk.RouteSubscription
	for _, r := range m.subscriptions {
		if r.Matches(source) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InTx executes fn against the store itself. The memory store offers
// no rollback semantics.
func (m *MemoryStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(m)
}
