package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/history/migrations"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
)

var ErrEmptyPatient = errors.New("patient id is required")

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// #region store-struct
// Store keeps per-patient session records in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// Open opens (or creates) a SQLite database and runs migrations.
// ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (provenance, weights).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region append
// Append validates and stores one session record. Missing ID and
// RecordedAt are filled in.
func (s *Store) Append(ctx context.Context, patientID string, rec assessment.Record) (assessment.Record, error) {
	if patientID == "" {
		return assessment.Record{}, ErrEmptyPatient
	}
	if err := rec.Validate(); err != nil {
		return assessment.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}

	var skipped interface{}
	if len(rec.SkippedExercises) > 0 {
		raw, err := json.Marshal(rec.SkippedExercises)
		if err != nil {
			return assessment.Record{}, fmt.Errorf("marshal skipped: %w", err)
		}
		skipped = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, patient_id, recorded_at, difficulty_felt, muscle_stimulus, sweat_level,
		                       pain, completed_sets, total_sets, skipped_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, patientID, rec.RecordedAt.UTC().Format(logging.TimeLayout),
		rec.DifficultyFelt, rec.MuscleStimulus, rec.SweatLevel,
		nullInt(rec.Pain), nullInt(rec.CompletedSets), nullInt(rec.TotalSets), skipped,
		time.Now().UTC().Format(logging.TimeLayout),
	)
	if err != nil {
		return assessment.Record{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

// #endregion append

// #region history
const sessionColumns = `id, recorded_at, difficulty_felt, muscle_stimulus, sweat_level,
        pain, completed_sets, total_sets, skipped_json`

// History returns up to limit of the patient's most recent active records
// in chronological order. limit <= 0 returns all of them.
func (s *Store) History(ctx context.Context, patientID string, limit int) (assessment.History, error) {
	if patientID == "" {
		return assessment.History{}, ErrEmptyPatient
	}
	if limit <= 0 {
		limit = -1
	}
	newestFirst, err := s.query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE patient_id = ? AND archived = 0
		 ORDER BY recorded_at DESC LIMIT ?`, patientID, limit,
	)
	if err != nil {
		return assessment.History{}, err
	}

	records := make([]assessment.Record, len(newestFirst))
	for i, r := range newestFirst {
		records[len(newestFirst)-1-i] = r
	}
	return assessment.HistoryOf(records...), nil
}

// Timeline returns every record the patient ever stored, archived ones
// included, oldest first.
func (s *Store) Timeline(ctx context.Context, patientID string) ([]assessment.Record, error) {
	if patientID == "" {
		return nil, ErrEmptyPatient
	}
	return s.query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions WHERE patient_id = ?
		 ORDER BY recorded_at ASC`, patientID,
	)
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]assessment.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []assessment.Record
	for rows.Next() {
		var rec assessment.Record
		var recorded string
		var pain, completed, total sql.NullInt64
		var skipped sql.NullString
		if err := rows.Scan(&rec.ID, &recorded, &rec.DifficultyFelt, &rec.MuscleStimulus, &rec.SweatLevel,
			&pain, &completed, &total, &skipped); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		rec.Pain = intPtr(pain)
		rec.CompletedSets = intPtr(completed)
		rec.TotalSets = intPtr(total)
		if skipped.Valid {
			if err := json.Unmarshal([]byte(skipped.String), &rec.SkippedExercises); err != nil {
				return nil, fmt.Errorf("decode skipped: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion history

// #region archive
// Archive hides all of the patient's active records from History, keeping
// them on disk. Returns the number of records archived.
func (s *Store) Archive(ctx context.Context, patientID string) (int64, error) {
	if patientID == "" {
		return 0, ErrEmptyPatient
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET archived = 1 WHERE patient_id = ? AND archived = 0`, patientID)
	if err != nil {
		return 0, fmt.Errorf("archive sessions: %w", err)
	}
	return res.RowsAffected()
}

// Patients lists every patient with at least one active record.
func (s *Store) Patients(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT patient_id FROM sessions WHERE archived = 0 ORDER BY patient_id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion archive

// #region helpers
func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// #endregion helpers
