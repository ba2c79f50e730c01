package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision is the dedup engine's verdict for one candidate.
type Decision string

const (
	DecisionAdmitted Decision = "admitted"
	DecisionMerged   Decision = "merged"
)

// CooldownPolicy maps severity to the minimum window during which a second
// occurrence of the same cause is merged rather than re-raised.
type CooldownPolicy map[Severity]time.Duration

func DefaultCooldowns() CooldownPolicy {
	return CooldownPolicy{
		SeverityCritical: 60 * time.Minute,
		SeverityWarning:  120 * time.Minute,
		SeverityAdvisory: 240 * time.Minute,
	}
}

func (p CooldownPolicy) For(s Severity) time.Duration {
	return p[s]
}

func (p CooldownPolicy) Validate() error {
	for _, s := range []Severity{SeverityAdvisory, SeverityWarning, SeverityCritical} {
		if p[s] <= 0 {
			return fmt.Errorf("cooldown for %s must be positive", s)
		}
	}
	return nil
}

// Deduper decides whether a candidate merges into an open alert or is
// admitted as a new one. The admit/merge decision is serialized per
// (device, parameter) key so two concurrent readings cannot both admit
// within the same cooldown window.
type Deduper struct {
	store     Store
	cooldowns CooldownPolicy

	mu   sync.Mutex
	keys map[string]*sync.Mutex

	now func() time.Time
}

func NewDeduper(store Store, cooldowns CooldownPolicy) *Deduper {
	return &Deduper{
		store:     store,
		cooldowns: cooldowns,
		keys:      make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// Process applies the cooldown contract to one candidate. On a store
// failure the candidate is dropped: the error is returned for logging and
// the next reading cycle supersedes it, no retry happens here.
func (d *Deduper) Process(ctx context.Context, c Candidate) (*Alert, Decision, error) {
	if c.DeviceID == "" {
		return nil, "", fmt.Errorf("%w: empty device id", ErrInvalidReading)
	}
	if !c.Parameter.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownParameter, c.Parameter)
	}
	if !c.Severity.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidSeverity, c.Severity)
	}

	unlock := d.lockKey(c.DeviceID, c.Parameter)
	defer unlock()

	now := d.now()

	open, err := d.store.LatestOpen(ctx, c.DeviceID, c.Parameter)
	if err != nil && !errors.Is(err, ErrAlertNotFound) {
		return nil, "", fmt.Errorf("cooldown lookup: %w", err)
	}

	if open != nil && now.Sub(open.CreatedAt) < d.cooldowns.For(c.Severity) {
		open.OccurrenceCount++
		open.LastOccurrence = now
		open.CurrentValue = c.Value
		open.UpdatedAt = now
		if err := d.store.Update(ctx, open); err != nil {
			return nil, "", fmt.Errorf("merge alert: %w", err)
		}
		return open, DecisionMerged, nil
	}

	a := &Alert{
		ID:              uuid.New().String(),
		DeviceID:        c.DeviceID,
		Parameter:       c.Parameter,
		Severity:        c.Severity,
		Status:          StatusUnacknowledged,
		CurrentValue:    c.Value,
		Threshold:       c.Threshold,
		OccurrenceCount: 1,
		FirstOccurrence: now,
		LastOccurrence:  now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := d.store.Create(ctx, a); err != nil {
		return nil, "", fmt.Errorf("admit alert: %w", err)
	}
	return a, DecisionAdmitted, nil
}

// lockKey returns an unlock func for the per-key mutex. Entries are never
// evicted; the map is bounded by device x parameter cardinality.
func (d *Deduper) lockKey(deviceID string, p Parameter) func() {
	key := deviceID + "/" + string(p)

	d.mu.Lock()
	m, ok := d.keys[key]
	if !ok {
		m = &sync.Mutex{}
		d.keys[key] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}
