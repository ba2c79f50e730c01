package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/logger"
	"github.com/google/uuid"
)

// Router expands a newly admitted alert into delivery obligations, one
// per matching (subscriber, channel) pair. Quiet hours suppress
// non-critical alerts entirely; critical alerts always go through.
type Router struct {
	prefs       PreferenceStore
	obligations ObligationStore
	now         func() time.Time
}

func NewRouter(prefs PreferenceStore, obligations ObligationStore) *Router {
	return &Router{
		prefs:       prefs,
		obligations: obligations,
		now:         time.Now,
	}
}

// Route evaluates every subscriber preference against the alert and
// persists one pending obligation per matched channel. Returns the
// obligations created.
func (r *Router) Route(ctx context.Context, a *alert.Alert) ([]*Obligation, error) {
	prefs, err := r.prefs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing preferences: %w", err)
	}

	now := r.now()
	var created []*Obligation
	for _, p := range prefs {
		if !p.Matches(a) {
			continue
		}
		if a.Severity != alert.SeverityCritical && r.inQuietHours(p, now) {
			logger.WithContext(ctx).Debug("suppressed by quiet hours",
				"subscriber_id", p.SubscriberID, "alert_id", a.ID, "severity", string(a.Severity))
			continue
		}
		for _, ch := range p.Channels {
			if !ch.Valid() {
				continue
			}
			o := &Obligation{
				ID:            uuid.New().String(),
				AlertID:       a.ID,
				SubscriberID:  p.SubscriberID,
				Channel:       ch,
				Attempt:       0,
				NextAttemptAt: now,
				Outcome:       OutcomePending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := r.obligations.Create(ctx, o); err != nil {
				return created, fmt.Errorf("creating obligation: %w", err)
			}
			created = append(created, o)
		}
	}
	return created, nil
}

// Matches reports whether the alert passes the preference's filters.
// Empty filter slices match everything.
func (p *Preference) Matches(a *alert.Alert) bool {
	if len(p.Severities) > 0 && !containsSeverity(p.Severities, a.Severity) {
		return false
	}
	if len(p.Parameters) > 0 && !containsParameter(p.Parameters, a.Parameter) {
		return false
	}
	if len(p.Devices) > 0 && !containsString(p.Devices, a.DeviceID) {
		return false
	}
	return true
}

// inQuietHours evaluates the preference's quiet window against the
// subscriber's local wall clock. Malformed windows or timezones are
// treated as no window rather than silently dropping alerts.
func (r *Router) inQuietHours(p *Preference, now time.Time) bool {
	if p.QuietHours == nil {
		return false
	}
	start, err1 := parseMinutes(p.QuietHours.Start)
	end, err2 := parseMinutes(p.QuietHours.End)
	if err1 != nil || err2 != nil {
		return false
	}
	if start == end {
		return false
	}

	local := now
	if p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			local = now.In(loc)
		}
	}
	cur := local.Hour()*60 + local.Minute()

	if start < end {
		return cur >= start && cur < end
	}
	// Window wraps past midnight, e.g. 22:00 to 06:00.
	return cur >= start || cur < end
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func containsSeverity(list []alert.Severity, s alert.Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsParameter(list []alert.Parameter, p alert.Parameter) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
