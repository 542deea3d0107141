package weights

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// #region source

// Source loads the raw weight table of one category.
// Implementations return an error wrapping ErrNotProvisioned when the
// category has no data.
type Source interface {
	Load(ctx context.Context, category bucket.Category) (*Table, error)
}

// #endregion source

// #region store

// Store is a read-through, memoizing cache over a Source. Each category is
// loaded at most once at a time; concurrent first requests share one load.
// Failed loads are not cached.
type Store struct {
	source Source
	log    *logging.Logger

	mu     sync.RWMutex
	tables map[bucket.Category]*Table
	group  singleflight.Group
}

// NewStore creates an empty store over source.
func NewStore(source Source, log *logging.Logger) *Store {
	return &Store{
		source: source,
		log:    logging.OrNop(log),
		tables: make(map[bucket.Category]*Table),
	}
}

// #endregion store

// #region get

// Get returns the table for category, loading it on first use.
func (s *Store) Get(ctx context.Context, category bucket.Category) (*Table, error) {
	if t, ok := s.cached(category); ok {
		return t, nil
	}

	// The shared load outlives any one caller; each caller still stops
	// waiting when its own ctx is done.
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(category), func() (interface{}, error) {
		if t, ok := s.cached(category); ok {
			return t, nil
		}
		t, err := s.source.Load(loadCtx, category)
		if err != nil {
			metrics.WeightLoads.WithLabelValues(string(category), "error").Inc()
			s.log.Error("weight table load failed", "category", category, "error", err)
			return nil, errors.Wrapf(err, "load weights for %s", category)
		}
		s.mu.Lock()
		s.tables[category] = t
		s.mu.Unlock()
		metrics.WeightLoads.WithLabelValues(string(category), "ok").Inc()
		s.log.Info("weight table loaded", "category", category, "symptoms", t.Len(), "buckets", len(t.order))
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Table), nil
	}
}

// Preload loads every category up front; the first failure is returned.
func (s *Store) Preload(ctx context.Context, categories ...bucket.Category) error {
	for _, c := range categories {
		if _, err := s.Get(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Loaded lists the categories currently cached.
func (s *Store) Loaded() []bucket.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bucket.Category, 0, len(s.tables))
	for _, c := range bucket.Categories {
		if _, ok := s.tables[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) cached(category bucket.Category) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[category]
	return t, ok
}

// #endregion get
