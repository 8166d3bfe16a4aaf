package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/Tsinling0525/canvasflow/model"
)

const defaultRedisPrefix = "canvasflow:"

// RedisRunLog keeps run records in Redis: one string key per record and a
// list of ids, newest first, that drives eviction.
type RedisRunLog struct {
	client    *redis.Client
	keyPrefix string
	cap       int
}

func NewRedisRunLog(client *redis.Client, keyPrefix string, limit int) *RedisRunLog {
	if keyPrefix == "" {
		keyPrefix = defaultRedisPrefix
	}
	return &RedisRunLog{client: client, keyPrefix: keyPrefix + "run:", cap: capacity(limit)}
}

func (r *RedisRunLog) dataKey(id string) string { return r.keyPrefix + "data:" + id }

func (r *RedisRunLog) indexKey() string { return r.keyPrefix + "index" }

func (r *RedisRunLog) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// saveScript stores a record, moves its id to the head of the index and
// evicts everything past the capacity in one atomic step.
// KEYS: index, data key. ARGV: id, record, cap, cap-1, data key prefix.
var saveScript = redis.NewScript(`
redis.call('SET', KEYS[2], ARGV[2])
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('LPUSH', KEYS[1], ARGV[1])
local stale = redis.call('LRANGE', KEYS[1], ARGV[3], -1)
redis.call('LTRIM', KEYS[1], 0, ARGV[4])
for _, id in ipairs(stale) do
  redis.call('DEL', ARGV[5] .. id)
end
return #stale
`)

func (r *RedisRunLog) Save(ctx context.Context, rec *model.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	keys := []string{r.indexKey(), r.dataKey(rec.ID)}
	args := []any{rec.ID, string(data), strconv.Itoa(r.cap), strconv.Itoa(r.cap - 1), r.dataKey("")}
	return saveScript.Run(ctx, r.client, keys, args...).Err()
}

func (r *RedisRunLog) List(ctx context.Context) ([]model.RunRecord, error) {
	ids, err := r.client.LRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.dataKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec model.RunRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RedisRunLog) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	data, err := r.client.Get(ctx, r.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &rec, nil
}

func (r *RedisRunLog) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	removed := pipe.LRem(ctx, r.indexKey(), 0, id)
	pipe.Del(ctx, r.dataKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if removed.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRunLog) Clear(ctx context.Context) error {
	ids, err := r.client.LRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := []string{r.indexKey()}
	for _, id := range ids {
		keys = append(keys, r.dataKey(id))
	}
	return r.client.Del(ctx, keys...).Err()
}

var _ RunLog = (*RedisRunLog)(nil)
