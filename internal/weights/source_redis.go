package weights

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// StringGetter is the slice of the redis client the source needs.
// *redis.Client and redis.UniversalClient satisfy it.
type StringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource reads JSON documents stored at weights:<category> and
// buckets:<category>, in the same shape as the file documents.
type RedisSource struct {
	client StringGetter
}

func NewRedisSource(client StringGetter) *RedisSource {
	return &RedisSource{client: client}
}

func WeightsKey(category bucket.Category) string { return "weights:" + string(category) }
func BucketsKey(category bucket.Category) string { return "buckets:" + string(category) }

func (s *RedisSource) Load(ctx context.Context, category bucket.Category) (*Table, error) {
	weightsDoc, found, err := s.document(ctx, WeightsKey(category))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotProvisioned, "redis key %s missing", WeightsKey(category))
	}
	bucketsDoc, _, err := s.document(ctx, BucketsKey(category))
	if err != nil {
		return nil, err
	}
	return tableFromDocuments(category, weightsDoc, bucketsDoc)
}

func (s *RedisSource) document(ctx context.Context, key string) (map[string]interface{}, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, false, errors.Wrapf(ErrInvalidTable, "decode %s: %v", key, err)
	}
	return doc, true, nil
}

// StringSetter is the write side PutRedis needs.
type StringSetter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// PutRedis publishes t under its weights and buckets keys without expiry,
// in the shape RedisSource reads back.
func PutRedis(ctx context.Context, client StringSetter, t *Table) error {
	vectors := make(map[string][]float64, len(t.weights))
	for symptom, vec := range t.weights {
		vectors[symptom] = vec
	}
	weightsDoc, err := json.Marshal(vectors)
	if err != nil {
		return errors.Wrap(err, "marshal weights")
	}
	bucketsDoc, err := json.Marshal(map[string][]string{"order": bucket.RankedList(t.order).Strings()})
	if err != nil {
		return errors.Wrap(err, "marshal bucket order")
	}
	if err := client.Set(ctx, WeightsKey(t.category), string(weightsDoc), 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", WeightsKey(t.category))
	}
	if err := client.Set(ctx, BucketsKey(t.category), string(bucketsDoc), 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", BucketsKey(t.category))
	}
	return nil
}
