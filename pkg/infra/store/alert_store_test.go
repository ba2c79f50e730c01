package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aquamon/aquamon/pkg/alert"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func testAlert(deviceID string, p alert.Parameter, status alert.Status, createdAt time.Time) *alert.Alert {
	return &alert.Alert{
		DeviceID:        deviceID,
		Parameter:       p,
		Severity:        alert.SeverityWarning,
		Status:          status,
		CurrentValue:    8.7,
		Threshold:       "outside [6.50, 8.50]",
		OccurrenceCount: 1,
		FirstOccurrence: createdAt,
		LastOccurrence:  createdAt,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestAlertStoreCreateGet(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	a := testAlert("tank-1", alert.ParameterPH, alert.StatusUnacknowledged, time.Now())
	if err := s.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if a.ID == "" {
		t.Fatal("create should assign an ID")
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != "tank-1" || got.Parameter != alert.ParameterPH {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, a.CreatedAt)
	}
	if got.AcknowledgedAt != nil || got.ResolvedAt != nil {
		t.Error("lifecycle timestamps should round-trip as nil")
	}
}

func TestAlertStoreGetMissing(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	if _, err := s.Get(context.Background(), "ghost"); !errors.Is(err, alert.ErrAlertNotFound) {
		t.Fatalf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertStoreUpdate(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	a := testAlert("tank-1", alert.ParameterPH, alert.StatusUnacknowledged, time.Now())
	if err := s.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	a.Status = alert.StatusAcknowledged
	a.AcknowledgedAt = &now
	a.OccurrenceCount = 3
	a.UpdatedAt = now
	if err := s.Update(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != alert.StatusAcknowledged || got.OccurrenceCount != 3 {
		t.Errorf("got %+v", got)
	}
	if got.AcknowledgedAt == nil || !got.AcknowledgedAt.Equal(now) {
		t.Errorf("acknowledged_at = %v, want %v", got.AcknowledgedAt, now)
	}

	ghost := testAlert("x", alert.ParameterTDS, alert.StatusUnacknowledged, now)
	ghost.ID = "ghost"
	if err := s.Update(ctx, ghost); !errors.Is(err, alert.ErrAlertNotFound) {
		t.Fatalf("err = %v, want ErrAlertNotFound", err)
	}
}

func TestAlertStoreListFiltersAndPaginates(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		a := testAlert("tank-1", alert.ParameterPH, alert.StatusUnacknowledged, base.Add(time.Duration(i)*time.Minute))
		if err := s.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	other := testAlert("tank-2", alert.ParameterTDS, alert.StatusResolved, base)
	if err := s.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, total, err := s.List(ctx, alert.Filter{DeviceID: "tank-1", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Error("results should be ordered newest first")
	}

	byStatus, total, err := s.List(ctx, alert.Filter{Status: alert.StatusResolved})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(byStatus) != 1 || byStatus[0].DeviceID != "tank-2" {
		t.Errorf("status filter got %d/%d", len(byStatus), total)
	}
}

func TestAlertStoreListActive(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	open := testAlert("tank-1", alert.ParameterPH, alert.StatusAcknowledged, time.Now())
	closed := testAlert("tank-1", alert.ParameterTDS, alert.StatusResolved, time.Now())
	for _, a := range []*alert.Alert{open, closed} {
		if err := s.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != open.ID {
		t.Errorf("active = %+v", active)
	}
}

func TestAlertStoreLatestOpen(t *testing.T) {
	s := NewAlertStore(openTestDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	older := testAlert("tank-1", alert.ParameterPH, alert.StatusAcknowledged, base)
	newer := testAlert("tank-1", alert.ParameterPH, alert.StatusUnacknowledged, base.Add(10*time.Minute))
	resolved := testAlert("tank-1", alert.ParameterPH, alert.StatusResolved, base.Add(20*time.Minute))
	for _, a := range []*alert.Alert{older, newer, resolved} {
		if err := s.Create(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LatestOpen(ctx, "tank-1", alert.ParameterPH)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != newer.ID {
		t.Errorf("latest open = %s, want %s", got.ID, newer.ID)
	}

	if _, err := s.LatestOpen(ctx, "tank-1", alert.ParameterTurbidity); !errors.Is(err, alert.ErrAlertNotFound) {
		t.Fatalf("err = %v, want ErrAlertNotFound", err)
	}
}
