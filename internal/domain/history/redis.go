package history

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const listPageSize = 100

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	limit  int
}

// NewRedis constructs a redis-backed history store. Records live under
// prefix+id and are ordered by a sorted set at prefix+"index".
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "sentinel:history:"
	}
	return &redisStore{
		client: client,
		ttl:    cfg.TTL,
		prefix: prefix,
		limit:  cfg.limit(),
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + "record:" + id
}

func (s *redisStore) indexKey() string {
	return s.prefix + "index"
}

func (s *redisStore) Save(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id required")
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(rec.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.CreatedAt.UnixMilli()), Member: rec.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	return s.trim(ctx)
}

func (s *redisStore) trim(ctx context.Context) error {
	overflow, err := s.client.ZRange(ctx, s.indexKey(), 0, int64(-s.limit-1)).Result()
	if err != nil || len(overflow) == 0 {
		return err
	}
	keys := make([]string, 0, len(overflow))
	members := make([]interface{}, 0, len(overflow))
	for _, id := range overflow {
		keys = append(keys, s.key(id))
		members = append(members, id)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, id string) (Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List walks the index newest first in pages, skipping entries whose record
// has expired, until limit live records are collected or the index ends.
func (s *redisStore) List(ctx context.Context, limit int) ([]Record, error) {
	page := int64(listPageSize)
	if limit > 0 && int64(limit) < page {
		page = int64(limit)
	}

	out := make([]Record, 0)
	var stale []interface{}
	for start := int64(0); ; start += page {
		ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, start+page-1).Result()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = s.key(id)
		}
		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}

		for i, value := range values {
			raw, ok := value.(string)
			if !ok {
				// expired by TTL, drop it from the index
				stale = append(stale, ids[i])
				continue
			}
			var rec Record
			if err := sonic.UnmarshalString(raw, &rec); err != nil {
				return nil, err
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		if (limit > 0 && len(out) == limit) || int64(len(ids)) < page {
			break
		}
	}

	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	records, err := s.List(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	return summarize(DriverRedis, records), nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
