package service

import (
	"context"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/logger"
)

// Resolver sweeps open alerts and resolves those whose condition has
// not recurred for the idle window. Each resolution goes through the
// monitor so the usual events fire.
type Resolver struct {
	monitor  *Monitor
	alerts   alert.Store
	idle     time.Duration
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewResolver(monitor *Monitor, alerts alert.Store, idle, interval time.Duration) *Resolver {
	if idle <= 0 {
		idle = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Resolver{
		monitor:  monitor,
		alerts:   alerts,
		idle:     idle,
		interval: interval,
		now:      time.Now,
	}
}

func (r *Resolver) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Resolver) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Resolver) sweep(ctx context.Context) {
	active, err := r.alerts.ListActive(ctx)
	if err != nil {
		logger.Default().Error("listing active alerts for auto-resolve", "error", err)
		return
	}

	cutoff := r.now().Add(-r.idle)
	for _, a := range active {
		if a.LastOccurrence.After(cutoff) {
			continue
		}
		if _, err := r.monitor.Resolve(ctx, a.ID); err != nil {
			logger.Default().Warn("auto-resolving alert", "alert_id", a.ID, "error", err)
			continue
		}
		logger.Default().Info("alert auto-resolved",
			"alert_id", a.ID, "device_id", a.DeviceID,
			"idle_since", a.LastOccurrence)
	}
}
