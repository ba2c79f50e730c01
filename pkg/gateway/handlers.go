package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/logger"
	"github.com/aquamon/aquamon/pkg/notify"
)

type errorResponse struct {
	Error string `json:"error"`
}

type readingRequest struct {
	DeviceID   string    `json:"device_id"`
	Parameter  string    `json:"parameter"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

type readingResponse struct {
	Status string       `json:"status"`
	Alert  *alert.Alert `json:"alert,omitempty"`
}

type listAlertsResponse struct {
	Alerts []alert.Alert `json:"alerts"`
	Total  int           `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleIngest authenticates the device, rate-limits it, and runs the
// reading through the pipeline.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}

	key := r.Header.Get("X-Device-Key")
	expected, known := s.deviceKeys[req.DeviceID]
	if !known || key == "" ||
		subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
		writeError(w, http.StatusUnauthorized, "unknown device or bad key")
		return
	}

	if s.limiter != nil {
		ok, err := s.limiter.Allow(req.DeviceID)
		if err != nil || !ok {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	ctx := logger.SetDeviceID(r.Context(), req.DeviceID)
	result, err := s.monitor.Ingest(ctx, alert.SensorReading{
		DeviceID:   req.DeviceID,
		Parameter:  alert.Parameter(req.Parameter),
		Value:      req.Value,
		ObservedAt: observedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrUnknownParameter), errors.Is(err, alert.ErrInvalidReading):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, alert.ErrNoProfile):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			// The reading was valid but could not be recorded; the
			// device should resend it.
			logger.WithContext(ctx).Error("ingest failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "reading could not be processed")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, readingResponse{Status: result.Status, Alert: result.Alert})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := alert.Filter{
		DeviceID:  q.Get("device_id"),
		Parameter: alert.Parameter(q.Get("parameter")),
		Status:    alert.Status(q.Get("status")),
		Severity:  alert.Severity(q.Get("severity")),
	}
	filter.Limit = intQuery(q.Get("limit"), 50)
	filter.Offset = intQuery(q.Get("offset"), 0)

	alerts, total, err := s.alerts.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing alerts failed")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, listAlertsResponse{Alerts: alerts, Total: total})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.alerts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading alert failed")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.monitor.Acknowledge)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.monitor.Resolve)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*alert.Alert, error)) {
	a, err := op(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrAlertNotFound):
			writeError(w, http.StatusNotFound, "alert not found")
		case errors.Is(err, alert.ErrAlreadyResolved):
			writeError(w, http.StatusConflict, "alert already resolved")
		default:
			writeError(w, http.StatusInternalServerError, "updating alert failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleListDeliveries exposes an alert's delivery obligations so an
// operator can see who was notified and whether it stuck.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.alerts.Get(r.Context(), id); err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading alert failed")
		return
	}

	obs, err := s.obligations.ListByAlert(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing deliveries failed")
		return
	}
	if obs == nil {
		obs = []*notify.Obligation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, notify.ErrPreferenceNotFound) {
			writeError(w, http.StatusNotFound, "subscriber not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading preferences failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var p notify.Preference
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	p.SubscriberID = chi.URLParam(r, "id")

	if len(p.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "at least one channel is required")
		return
	}
	for _, ch := range p.Channels {
		if !ch.Valid() {
			writeError(w, http.StatusBadRequest, "unknown channel: "+string(ch))
			return
		}
	}
	if p.QuietHours != nil {
		if _, err := time.Parse("15:04", p.QuietHours.Start); err != nil {
			writeError(w, http.StatusBadRequest, "quiet_hours.start must be HH:MM")
			return
		}
		if _, err := time.Parse("15:04", p.QuietHours.End); err != nil {
			writeError(w, http.StatusBadRequest, "quiet_hours.end must be HH:MM")
			return
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}
	}

	p.UpdatedAt = time.Now()
	if err := s.prefs.Put(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, "saving preferences failed")
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Thresholds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.hub != nil {
		health["ws_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, health)
}

func intQuery(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
