// Package service ties evaluation, deduplication, routing, and event
// publication into the operations the gateway exposes.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/eventbus"
	"github.com/aquamon/aquamon/pkg/infra/logger"
	"github.com/aquamon/aquamon/pkg/notify"
)

// IngestResult reports what happened to one reading.
type IngestResult struct {
	// Status is "nominal", "admitted", or "merged".
	Status string
	Alert  *alert.Alert
}

// Monitor is the core pipeline: evaluate a reading against thresholds,
// dedupe the candidate, persist, route notifications, and publish the
// lifecycle event.
type Monitor struct {
	thresholds alert.ThresholdSet
	deduper    *alert.Deduper
	alerts     alert.Store
	router     *notify.Router
	bus        eventbus.Bus
	now        func() time.Time
}

func NewMonitor(thresholds alert.ThresholdSet, deduper *alert.Deduper, alerts alert.Store, router *notify.Router, bus eventbus.Bus) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		deduper:    deduper,
		alerts:     alerts,
		router:     router,
		bus:        bus,
		now:        time.Now,
	}
}

// Thresholds returns the active threshold set.
func (m *Monitor) Thresholds() alert.ThresholdSet {
	return m.thresholds
}

// Ingest runs one sensor reading through the pipeline. Routing and
// event publication failures are logged, not returned: the alert is
// already durable and the reading must not be re-ingested.
func (m *Monitor) Ingest(ctx context.Context, r alert.SensorReading) (IngestResult, error) {
	c, err := alert.Evaluate(r, m.thresholds)
	if err != nil {
		return IngestResult{}, err
	}
	if c == nil {
		return IngestResult{Status: "nominal"}, nil
	}

	a, decision, err := m.deduper.Process(ctx, *c)
	if err != nil {
		return IngestResult{}, fmt.Errorf("processing candidate: %w", err)
	}

	log := logger.WithContext(ctx)
	switch decision {
	case alert.DecisionAdmitted:
		if m.router != nil {
			if _, err := m.router.Route(ctx, a); err != nil {
				log.Error("routing notifications", "alert_id", a.ID, "error", err)
			}
		}
		m.publish(alert.EventAdmitted, a)
		log.Info("alert admitted",
			"alert_id", a.ID, "device_id", a.DeviceID,
			"parameter", string(a.Parameter), "severity", string(a.Severity))
		return IngestResult{Status: "admitted", Alert: a}, nil
	default:
		m.publish(alert.EventMerged, a)
		log.Debug("alert merged",
			"alert_id", a.ID, "occurrence_count", a.OccurrenceCount)
		return IngestResult{Status: "merged", Alert: a}, nil
	}
}

// Acknowledge marks an open alert as seen by an operator. Acknowledging
// an already acknowledged alert is a no-op; a resolved alert cannot be
// acknowledged.
func (m *Monitor) Acknowledge(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := m.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch a.Status {
	case alert.StatusResolved:
		return nil, alert.ErrAlreadyResolved
	case alert.StatusAcknowledged:
		return a, nil
	}

	now := m.now()
	a.Status = alert.StatusAcknowledged
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if err := m.alerts.Update(ctx, a); err != nil {
		return nil, err
	}

	m.publish(alert.EventAcknowledged, a)
	return a, nil
}

// Resolve closes an alert. Resolving twice is an error so callers can
// tell a stale button press from a fresh one.
func (m *Monitor) Resolve(ctx context.Context, id string) (*alert.Alert, error) {
	a, err := m.alerts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == alert.StatusResolved {
		return nil, alert.ErrAlreadyResolved
	}

	now := m.now()
	a.Status = alert.StatusResolved
	a.ResolvedAt = &now
	a.UpdatedAt = now
	if err := m.alerts.Update(ctx, a); err != nil {
		return nil, err
	}

	m.publish(alert.EventResolved, a)
	return a, nil
}

func (m *Monitor) publish(kind string, a *alert.Alert) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(alert.NewLifecycleEvent(kind, *a)); err != nil {
		logger.Default().Warn("publishing lifecycle event", "kind", kind, "alert_id", a.ID, "error", err)
	}
}
