package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record of alerts and their lifecycle state.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	Update(ctx context.Context, a *Alert) error
	List(ctx context.Context, filter Filter) ([]Alert, int, error)
	ListActive(ctx context.Context) ([]Alert, error)

	// LatestOpen returns the most recently created non-resolved alert for
	// the (device, parameter) key, or ErrAlertNotFound. More than one open
	// alert per key should not happen under correct admission, but can
	// under concurrent writers; preferring the newest one is the
	// documented tie-break.
	LatestOpen(ctx context.Context, deviceID string, p Parameter) (*Alert, error)
}

type MemoryStore struct {
	alerts map[string]*Alert
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*Alert)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.alerts[id]
	if !exists {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; !exists {
		return ErrAlertNotFound
	}
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Alert
	for _, a := range s.alerts {
		if filter.DeviceID != "" && a.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Parameter != "" && a.Parameter != filter.Parameter {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		matched = append(matched, *a)
	}

	sortAlertsByCreatedDesc(matched)
	total := len(matched)

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []Alert
	for _, a := range s.alerts {
		if a.Open() {
			active = append(active, *a)
		}
	}
	sortAlertsByCreatedDesc(active)
	return active, nil
}

func (s *MemoryStore) LatestOpen(ctx context.Context, deviceID string, p Parameter) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Alert
	for _, a := range s.alerts {
		if a.DeviceID != deviceID || a.Parameter != p || !a.Open() {
			continue
		}
		if latest == nil || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAlertNotFound
	}
	cp := *latest
	return &cp, nil
}

func sortAlertsByCreatedDesc(alerts []Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}
