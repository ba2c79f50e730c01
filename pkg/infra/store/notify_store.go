package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aquamon/aquamon/pkg/notify"
)

// ObligationStore implements notify.ObligationStore on SQLite.
type ObligationStore struct {
	db *sql.DB
}

func NewObligationStore(d *DB) *ObligationStore {
	return &ObligationStore{db: d.Handle()}
}

const obligationColumns = `id, alert_id, subscriber_id, channel, attempt, next_attempt_at,
	outcome, last_error, created_at, updated_at`

func (s *ObligationStore) Create(ctx context.Context, o *notify.Obligation) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	query := `
		INSERT INTO obligations (` + obligationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.AlertID, o.SubscriberID, string(o.Channel),
		o.Attempt, o.NextAttemptAt.UnixNano(),
		string(o.Outcome), o.LastError,
		o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert obligation: %w", err)
	}
	return nil
}

func (s *ObligationStore) Update(ctx context.Context, o *notify.Obligation) error {
	query := `
		UPDATE obligations SET
			attempt = ?, next_attempt_at = ?, outcome = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		o.Attempt, o.NextAttemptAt.UnixNano(), string(o.Outcome), o.LastError,
		o.UpdatedAt.UnixNano(), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update obligation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return notify.ErrObligationNotFound
	}
	return nil
}

func (s *ObligationStore) Get(ctx context.Context, id string) (*notify.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE id = ?`
	o, err := scanObligation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notify.ErrObligationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan obligation: %w", err)
	}
	return o, nil
}

func (s *ObligationStore) Due(ctx context.Context, now time.Time, limit int) ([]*notify.Obligation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + obligationColumns + `
		FROM obligations
		WHERE outcome = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(notify.OutcomePending), now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due obligations: %w", err)
	}
	defer rows.Close()

	return collectObligations(rows)
}

func (s *ObligationStore) ListByAlert(ctx context.Context, alertID string) ([]*notify.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM obligations WHERE alert_id = ? ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query obligations by alert: %w", err)
	}
	defer rows.Close()

	return collectObligations(rows)
}

func collectObligations(rows *sql.Rows) ([]*notify.Obligation, error) {
	var out []*notify.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanObligation(row rowScanner) (*notify.Obligation, error) {
	o := &notify.Obligation{}
	var channelStr, outcomeStr string
	var next, created, updated int64

	err := row.Scan(
		&o.ID, &o.AlertID, &o.SubscriberID, &channelStr,
		&o.Attempt, &next, &outcomeStr, &o.LastError, &created, &updated,
	)
	if err != nil {
		return nil, err
	}

	o.Channel = notify.Channel(channelStr)
	o.Outcome = notify.Outcome(outcomeStr)
	o.NextAttemptAt = time.Unix(0, next)
	o.CreatedAt = time.Unix(0, created)
	o.UpdatedAt = time.Unix(0, updated)
	return o, nil
}

// PreferenceStore implements notify.PreferenceStore on SQLite. The
// filter slices are stored as JSON columns.
type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(d *DB) *PreferenceStore {
	return &PreferenceStore{db: d.Handle()}
}

const preferenceColumns = `subscriber_id, email, push_target, channels, severities,
	parameters, devices, quiet_start, quiet_end, timezone, updated_at`

func (s *PreferenceStore) Get(ctx context.Context, subscriberID string) (*notify.Preference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM preferences WHERE subscriber_id = ?`
	p, err := scanPreference(s.db.QueryRowContext(ctx, query, subscriberID))
	if err == sql.ErrNoRows {
		return nil, notify.ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan preference: %w", err)
	}
	return p, nil
}

func (s *PreferenceStore) Put(ctx context.Context, p *notify.Preference) error {
	channelsJSON, _ := json.Marshal(p.Channels)
	severitiesJSON, _ := json.Marshal(p.Severities)
	parametersJSON, _ := json.Marshal(p.Parameters)
	devicesJSON, _ := json.Marshal(p.Devices)

	var quietStart, quietEnd string
	if p.QuietHours != nil {
		quietStart = p.QuietHours.Start
		quietEnd = p.QuietHours.End
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO preferences (` + preferenceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subscriber_id) DO UPDATE SET
			email = excluded.email,
			push_target = excluded.push_target,
			channels = excluded.channels,
			severities = excluded.severities,
			parameters = excluded.parameters,
			devices = excluded.devices,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.SubscriberID, p.Email, p.PushTarget,
		string(channelsJSON), string(severitiesJSON), string(parametersJSON), string(devicesJSON),
		quietStart, quietEnd, p.Timezone, p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *PreferenceStore) List(ctx context.Context) ([]*notify.Preference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM preferences ORDER BY subscriber_id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []*notify.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPreference(row rowScanner) (*notify.Preference, error) {
	p := &notify.Preference{}
	var channelsStr, severitiesStr, parametersStr, devicesStr string
	var quietStart, quietEnd string
	var updated int64

	err := row.Scan(
		&p.SubscriberID, &p.Email, &p.PushTarget,
		&channelsStr, &severitiesStr, &parametersStr, &devicesStr,
		&quietStart, &quietEnd, &p.Timezone, &updated,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(channelsStr), &p.Channels)
	json.Unmarshal([]byte(severitiesStr), &p.Severities)
	json.Unmarshal([]byte(parametersStr), &p.Parameters)
	json.Unmarshal([]byte(devicesStr), &p.Devices)
	if quietStart != "" || quietEnd != "" {
		p.QuietHours = &notify.QuietHours{Start: quietStart, End: quietEnd}
	}
	p.UpdatedAt = time.Unix(0, updated)
	return p, nil
}

var (
	_ notify.ObligationStore = (*ObligationStore)(nil)
	_ notify.PreferenceStore = (*PreferenceStore)(nil)
)
