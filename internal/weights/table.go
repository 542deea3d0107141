package weights

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// #region errors

// ErrNotProvisioned marks a category with no weight or bucket-order data.
// It is a configuration failure: callers must stop, not retry.
var ErrNotProvisioned = errors.New("weight table not provisioned")

// ErrInvalidTable marks weight data that breaks the table rules (duplicate buckets, length mismatch, negative weights).
var ErrInvalidTable = errors.New("invalid weight table")

// #endregion errors

// #region table

// Table is the immutable symptom → weight-vector mapping of one category.
type Table struct {
	category bucket.Category
	order    []bucket.Code
	weights  map[string][]float64
}

// NewTable validates and deep-copies the given data.
// An empty order falls back to bucket.DefaultOrder.
func NewTable(category bucket.Category, order []bucket.Code, weights map[string][]float64) (*Table, error) {
	if len(order) == 0 {
		order = bucket.DefaultOrder
	}
	seen := make(map[bucket.Code]bool, len(order))
	for _, b := range order {
		if seen[b] {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: duplicate bucket %s in order", category, b)
		}
		seen[b] = true
	}

	t := &Table{
		category: category,
		order:    append([]bucket.Code(nil), order...),
		weights:  make(map[string][]float64, len(weights)),
	}
	for symptom, vec := range weights {
		if len(vec) != len(order) {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: symptom %q has %d weights, bucket order has %d",
				category, symptom, len(vec), len(order))
		}
		for i, w := range vec {
			if w < 0 {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: symptom %q weight[%d] is negative", category, symptom, i)
			}
		}
		t.weights[symptom] = append([]float64(nil), vec...)
	}
	return t, nil
}

func (t *Table) Category() bucket.Category { return t.category }

// Order returns a copy of the bucket order.
func (t *Table) Order() []bucket.Code {
	return append([]bucket.Code(nil), t.order...)
}

// Vector returns a copy of the weight vector for symptom.
func (t *Table) Vector(symptom string) ([]float64, bool) {
	vec, ok := t.weights[symptom]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), vec...), true
}

// Len is the number of symptoms in the table.
func (t *Table) Len() int { return len(t.weights) }

// Symptoms lists the known symptom codes, sorted.
func (t *Table) Symptoms() []string {
	out := make([]string, 0, len(t.weights))
	for s := range t.weights {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// #endregion table

// #region documents

// tableFromDocuments builds a Table from the decoded weights and buckets
// documents. Keys starting with "_" in the weights document are metadata.
func tableFromDocuments(category bucket.Category, weightsDoc, bucketsDoc map[string]interface{}) (*Table, error) {
	var order []bucket.Code
	if raw, ok := bucketsDoc["order"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: bucket order is not a list", category)
		}
		for _, v := range list {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: bucket order entry %v is not a string", category, v)
			}
			code, err := bucket.Parse(s)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: %v", category, err)
			}
			order = append(order, code)
		}
	}

	vectors := make(map[string][]float64, len(weightsDoc))
	for symptom, raw := range weightsDoc {
		if strings.HasPrefix(symptom, "_") {
			continue
		}
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: symptom %q is not a list", category, symptom)
		}
		vec := make([]float64, len(list))
		for i, v := range list {
			f, ok := toFloat(v)
			if !ok {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: symptom %q weight[%d] is not a number", category, symptom, i)
			}
			vec[i] = f
		}
		vectors[symptom] = vec
	}
	return NewTable(category, order, vectors)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// #endregion documents
