package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fugue-ai/rhema-sub012/rhlog"
	"github.com/fugue-ai/rhema-sub012/safety"
)

// RedisSnapshotStore persists coordinator.Snapshot values to Redis under a
// namespaced, TTL'd key, so an operator dashboard or a restarted kernel can
// observe recent coordination state without re-deriving it. Uses a
// namespace-prefixed key convention and an atomic-pipeline write, storing
// one coordination snapshot per namespace.
type RedisSnapshotStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    rhlog.Logger
}

// NewRedisSnapshotStore dials redisURL and returns a store namespaced under
// namespace, with entries expiring after ttl.
func NewRedisSnapshotStore(redisURL, namespace string, ttl time.Duration, logger rhlog.Logger) (*RedisSnapshotStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if logger == nil {
		logger = rhlog.NoOpLogger{}
	}
	return &RedisSnapshotStore{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
		logger:    rhlog.Component(logger, "coordinator/snapshot"),
	}, nil
}

func (s *RedisSnapshotStore) key() string {
	return fmt.Sprintf("%s:coordinator:snapshot", s.namespace)
}

// Save writes snap as JSON with the store's TTL, in a single atomic
// pipeline call.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap safety.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(), data, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to persist snapshot", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	s.logger.Debug("snapshot persisted", map[string]interface{}{"ttl": s.ttl.String()})
	return nil
}

// Load reads back the most recently saved snapshot, if any is still live.
func (s *RedisSnapshotStore) Load(ctx context.Context) (safety.Snapshot, bool, error) {
	data, err := s.client.Get(ctx, s.key()).Result()
	if err == redis.Nil {
		return safety.Snapshot{}, false, nil
	}
	if err != nil {
		return safety.Snapshot{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	var snap safety.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return safety.Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}

// StartPeriodicSave persists src's snapshot every interval until ctx is
// cancelled, in a background goroutine.
func (s *RedisSnapshotStore) StartPeriodicSave(ctx context.Context, src *Coordinator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Save(ctx, src.Snapshot()); err != nil {
					s.logger.Warn("periodic snapshot save failed", map[string]interface{}{"error": err.Error()})
				}
			}
		}
	}()
}

// Close releases the underlying Redis client.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
