package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region sink
// Provenance writes engine decisions to the provenance_log table.
// The table is created by the history store migrations.
type Provenance struct {
	db *sql.DB
}

// NewProvenance wraps an open database handle.
func NewProvenance(db *sql.DB) *Provenance {
	return &Provenance{db: db}
}

// Record implements the decision sink used by the pipelines.
func (p *Provenance) Record(ctx context.Context, entry DecisionEntry) error {
	return LogDecision(ctx, p.db, entry)
}

// TimeLayout is the fixed-width UTC layout for timestamp columns, so they
// sort as text in time order. RFC3339Nano trims trailing zeros and would put
// "10:00:00Z" after "10:00:00.5Z".
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Recent returns the newest entries, most recent first.
func (p *Provenance) Recent(ctx context.Context, limit int) ([]DecisionEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, request_id, patient_id, stage, decision, reason, payload_json, created_at
		 FROM provenance_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var e DecisionEntry
		var requestID, patientID, reason, payload sql.NullString
		var stage, created string
		if err := rows.Scan(&e.ID, &requestID, &patientID, &stage, &e.Decision, &reason, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.RequestID = requestID.String
		e.PatientID = patientID.String
		e.Stage = Stage(stage)
		e.Reason = reason.String
		e.PayloadJSON = payload.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion sink

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(ctx context.Context, db *sql.DB, entry DecisionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO provenance_log (id, request_id, patient_id, stage, decision, reason, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		nullIfEmpty(entry.RequestID),
		nullIfEmpty(entry.PatientID),
		string(entry.Stage),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.PayloadJSON),
		entry.CreatedAt.UTC().Format(TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
