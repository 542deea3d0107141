package weights

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// SQLSource reads weight tables from the weight_vectors and bucket_orders
// tables created by the history migrations.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

func (s *SQLSource) Load(ctx context.Context, category bucket.Category) (*Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symptom, vector_json FROM weight_vectors WHERE category = ?`, string(category))
	if err != nil {
		return nil, errors.Wrap(err, "query weight vectors")
	}
	defer rows.Close()

	vectors := make(map[string][]float64)
	for rows.Next() {
		var symptom, raw string
		if err := rows.Scan(&symptom, &raw); err != nil {
			return nil, errors.Wrap(err, "scan weight vector")
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: symptom %q: %v", category, symptom, err)
		}
		vectors[symptom] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate weight vectors")
	}
	if len(vectors) == 0 {
		return nil, errors.Wrapf(ErrNotProvisioned, "no weight vectors for %s", category)
	}

	var orderJSON string
	err = s.db.QueryRowContext(ctx,
		`SELECT order_json FROM bucket_orders WHERE category = ?`, string(category)).Scan(&orderJSON)
	var order []bucket.Code
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, errors.Wrap(err, "query bucket order")
	default:
		var names []string
		if err := json.Unmarshal([]byte(orderJSON), &names); err != nil {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: bucket order: %v", category, err)
		}
		for _, n := range names {
			code, err := bucket.Parse(n)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: %v", category, err)
			}
			order = append(order, code)
		}
	}
	return NewTable(category, order, vectors)
}

// Put replaces the stored table for t's category.
func (s *SQLSource) Put(ctx context.Context, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weight_vectors WHERE category = ?`, string(t.category)); err != nil {
		return errors.Wrap(err, "clear weight vectors")
	}
	for symptom, vec := range t.weights {
		raw, _ := json.Marshal(vec)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weight_vectors (category, symptom, vector_json) VALUES (?, ?, ?)`,
			string(t.category), symptom, string(raw)); err != nil {
			return errors.Wrapf(err, "insert vector %s", symptom)
		}
	}
	order, _ := json.Marshal(bucket.RankedList(t.order).Strings())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bucket_orders (category, order_json) VALUES (?, ?)
		 ON CONFLICT(category) DO UPDATE SET order_json = excluded.order_json`,
		string(t.category), string(order)); err != nil {
		return errors.Wrap(err, "upsert bucket order")
	}
	return errors.Wrap(tx.Commit(), "commit")
}
