package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aquamon/aquamon/pkg/alert"
)

// AlertStore implements alert.Store on SQLite.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(d *DB) *AlertStore {
	return &AlertStore{db: d.Handle()}
}

const alertColumns = `id, device_id, parameter, severity, status, current_value, threshold,
	occurrence_count, first_occurrence, last_occurrence, created_at, updated_at,
	acknowledged_at, resolved_at`

func (s *AlertStore) Create(ctx context.Context, a *alert.Alert) error {
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

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.DeviceID, string(a.Parameter), string(a.Severity), string(a.Status),
		a.CurrentValue, a.Threshold, a.OccurrenceCount,
		a.FirstOccurrence.UnixNano(), a.LastOccurrence.UnixNano(),
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
		nanoOrNil(a.AcknowledgedAt), nanoOrNil(a.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *AlertStore) Get(ctx context.Context, id string) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, alert.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return a, nil
}

func (s *AlertStore) Update(ctx context.Context, a *alert.Alert) error {
	query := `
		UPDATE alerts SET
			severity = ?, status = ?, current_value = ?, threshold = ?,
			occurrence_count = ?, first_occurrence = ?, last_occurrence = ?,
			updated_at = ?, acknowledged_at = ?, resolved_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(a.Severity), string(a.Status), a.CurrentValue, a.Threshold,
		a.OccurrenceCount, a.FirstOccurrence.UnixNano(), a.LastOccurrence.UnixNano(),
		a.UpdatedAt.UnixNano(), nanoOrNil(a.AcknowledgedAt), nanoOrNil(a.ResolvedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return alert.ErrAlertNotFound
	}
	return nil
}

func (s *AlertStore) List(ctx context.Context, filter alert.Filter) ([]alert.Alert, int, error) {
	whereClause := "1=1"
	args := []interface{}{}

	if filter.DeviceID != "" {
		whereClause += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.Parameter != "" {
		whereClause += " AND parameter = ?"
		args = append(args, string(filter.Parameter))
	}
	if filter.Status != "" {
		whereClause += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		whereClause += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts WHERE %s", whereClause)
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+alertColumns+`
		FROM alerts
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, whereClause)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, total, rows.Err()
}

func (s *AlertStore) ListActive(ctx context.Context) ([]alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status != ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, string(alert.StatusResolved))
	if err != nil {
		return nil, fmt.Errorf("query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *AlertStore) LatestOpen(ctx context.Context, deviceID string, p alert.Parameter) (*alert.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE device_id = ? AND parameter = ? AND status != ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, deviceID, string(p), string(alert.StatusResolved)))
	if err == sql.ErrNoRows {
		return nil, alert.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*alert.Alert, error) {
	a := &alert.Alert{}
	var paramStr, sevStr, statusStr string
	var first, last, created, updated int64
	var acked, resolved sql.NullInt64

	err := row.Scan(
		&a.ID, &a.DeviceID, &paramStr, &sevStr, &statusStr,
		&a.CurrentValue, &a.Threshold, &a.OccurrenceCount,
		&first, &last, &created, &updated, &acked, &resolved,
	)
	if err != nil {
		return nil, err
	}

	a.Parameter = alert.Parameter(paramStr)
	a.Severity = alert.Severity(sevStr)
	a.Status = alert.Status(statusStr)
	a.FirstOccurrence = time.Unix(0, first)
	a.LastOccurrence = time.Unix(0, last)
	a.CreatedAt = time.Unix(0, created)
	a.UpdatedAt = time.Unix(0, updated)
	a.AcknowledgedAt = timeOrNil(acked)
	a.ResolvedAt = timeOrNil(resolved)
	return a, nil
}

func nanoOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

var _ alert.Store = (*AlertStore)(nil)
