package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObligationStore persists delivery obligations.
type ObligationStore interface {
	Create(ctx context.Context, o *Obligation) error
	Update(ctx context.Context, o *Obligation) error
	Get(ctx context.Context, id string) (*Obligation, error)
	// Due returns pending obligations whose NextAttemptAt is at or
	// before now, oldest first, up to limit.
	Due(ctx context.Context, now time.Time, limit int) ([]*Obligation, error)
	ListByAlert(ctx context.Context, alertID string) ([]*Obligation, error)
}

// PreferenceStore persists subscriber notification preferences.
type PreferenceStore interface {
	Get(ctx context.Context, subscriberID string) (*Preference, error)
	Put(ctx context.Context, p *Preference) error
	List(ctx context.Context) ([]*Preference, error)
}

// MemoryObligationStore is the in-memory ObligationStore, used in tests
// and when persistence is disabled.
type MemoryObligationStore struct {
	mu          sync.RWMutex
	obligations map[string]*Obligation
}

func NewMemoryObligationStore() *MemoryObligationStore {
	return &MemoryObligationStore{obligations: make(map[string]*Obligation)}
}

func (s *MemoryObligationStore) Create(_ context.Context, o *Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	cp := *o
	s.obligations[o.ID] = &cp
	return nil
}

func (s *MemoryObligationStore) Update(_ context.Context, o *Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.obligations[o.ID]; !ok {
		return ErrObligationNotFound
	}
	cp := *o
	s.obligations[o.ID] = &cp
	return nil
}

func (s *MemoryObligationStore) Get(_ context.Context, id string) (*Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.obligations[id]
	if !ok {
		return nil, ErrObligationNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemoryObligationStore) Due(_ context.Context, now time.Time, limit int) ([]*Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Obligation
	for _, o := range s.obligations {
		if o.Outcome == OutcomePending && !o.NextAttemptAt.After(now) {
			cp := *o
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryObligationStore) ListByAlert(_ context.Context, alertID string) ([]*Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Obligation
	for _, o := range s.obligations {
		if o.AlertID == alertID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryPreferenceStore is the in-memory PreferenceStore.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]*Preference
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]*Preference)}
}

func (s *MemoryPreferenceStore) Get(_ context.Context, subscriberID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[subscriberID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPreferenceStore) Put(_ context.Context, p *Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.prefs[p.SubscriberID] = &cp
	return nil
}

func (s *MemoryPreferenceStore) List(_ context.Context) ([]*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Preference, 0, len(s.prefs))
	for _, p := range s.prefs {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubscriberID < out[j].SubscriberID
	})
	return out, nil
}
