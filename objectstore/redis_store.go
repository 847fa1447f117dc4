package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fugue-ai/rhema-sub012/rherr"
	"github.com/fugue-ai/rhema-sub012/rhlog"
)

// RedisStore is a Store backed by Redis, for deployments that need the disk
// tier to survive a process restart or to be shared across kernel replicas.
// Uses DB-isolation and a namespace-prefixed key convention, and verifies
// the connection on construction.
type RedisStore struct {
	client    *redis.Client
	dbID      int
	namespace string
	logger    rhlog.Logger
}

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	RedisURL  string
	DB        int
	Namespace string
	Logger    rhlog.Logger
}

// NewRedisStore connects to Redis per opts, selecting DB for isolation from
// other Redis-backed components sharing the same instance (DB 0-6 reserved
// for application data, 7-15 for framework extensions).
func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	if opts.RedisURL == "" {
		return nil, rherr.New("objectstore.NewRedisStore", "objectstore", rherr.ErrTransport, "redis URL is required")
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, rherr.Wrap("objectstore.NewRedisStore", "objectstore", rherr.ErrTransport, err)
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, rherr.Wrap("objectstore.NewRedisStore", "objectstore", rherr.ErrTransport, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = rhlog.NoOpLogger{}
	}

	return &RedisStore{
		client:    client,
		dbID:      opts.DB,
		namespace: opts.Namespace,
		logger:    rhlog.Component(logger, "objectstore/redis"),
	}, nil
}

func (r *RedisStore) formatKey(key string) string {
	if r.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.namespace, key)
}

func (r *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.formatKey(key)).Bytes()
	if err == redis.Nil {
		return nil, rherr.New("objectstore.Read", "objectstore", rherr.ErrNotFound, key)
	}
	if err != nil {
		r.logger.Warn("redis read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, rherr.Wrap("objectstore.Read", "objectstore", rherr.ErrTransport, err)
	}
	return v, nil
}

func (r *RedisStore) Write(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.formatKey(key), value, 0).Err(); err != nil {
		r.logger.Warn("redis write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return rherr.Wrap("objectstore.Write", "objectstore", rherr.ErrTransport, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.formatKey(key)).Err(); err != nil {
		return rherr.Wrap("objectstore.Delete", "objectstore", rherr.ErrTransport, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := r.formatKey(prefix) + "*"
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if r.namespace != "" {
			key = strings.TrimPrefix(key, r.namespace+":")
		}
		out = append(out, key)
	}
	if err := iter.Err(); err != nil {
		return nil, rherr.Wrap("objectstore.List", "objectstore", rherr.ErrTransport, err)
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// HealthCheck verifies Redis connectivity.
func (r *RedisStore) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return rherr.Wrap("objectstore.HealthCheck", "objectstore", rherr.ErrTransport, err)
	}
	return nil
}
