package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	tserrors "github.com/logflow/tracesim/pkg/errors"
)

// RedisConfig configures the Redis result store.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	Password string
	Database int

	// Prefix is prepended to all keys (e.g., "tracesim:")
	Prefix string

	// TTL applies to run keys and batch sets (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:      address,
		Prefix:       "tracesim:",
		TTL:          7 * 24 * time.Hour,
		Timeout:      5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisStore keeps run results in Redis:
//
//	<prefix>run:<batch>:<run>  JSON document
//	<prefix>batch:<batch>      set of run numbers
//	<prefix>batches            set of batch ids
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to connect to Redis").
			WithContext("address", cfg.Address)
	}
	return &RedisStore{cfg: cfg, client: client}, nil
}

func (s *RedisStore) runKey(batchID string, run int) string {
	return s.cfg.Prefix + "run:" + sanitizeKey(batchID) + ":" + strconv.Itoa(run)
}

func (s *RedisStore) batchKey(batchID string) string {
	return s.cfg.Prefix + "batch:" + sanitizeKey(batchID)
}

func (s *RedisStore) batchesKey() string {
	return s.cfg.Prefix + "batches"
}

// Save writes the result and indexes it in one pipeline.
func (s *RedisStore) Save(ctx context.Context, r *RunResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(r)
	if err != nil {
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to marshal run result")
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.runKey(r.BatchID, r.Run), data, s.cfg.TTL)
	pipe.SAdd(ctx, s.batchKey(r.BatchID), strconv.Itoa(r.Run))
	pipe.SAdd(ctx, s.batchesKey(), sanitizeKey(r.BatchID))
	if s.cfg.TTL > 0 {
		pipe.Expire(ctx, s.batchKey(r.BatchID), s.cfg.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to save run result").
			WithContext("batch", r.BatchID).
			WithContext("run", r.Run)
	}
	return nil
}

// Load returns ErrNotFound for missing or expired runs.
func (s *RedisStore) Load(ctx context.Context, batchID string, run int) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.runKey(batchID, run)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to load run result")
	}
	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "corrupt run result")
	}
	return &r, nil
}

// List fetches every indexed run of a batch. Runs whose keys expired are
// skipped.
func (s *RedisStore) List(ctx context.Context, batchID string) ([]*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	members, err := s.client.SMembers(ctx, s.batchKey(batchID)).Result()
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to list batch")
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		run, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		keys = append(keys, s.runKey(batchID, run))
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to fetch batch results")
	}

	results := make([]*RunResult, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r RunResult
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "corrupt run result")
		}
		results = append(results, &r)
	}
	sortByRun(results)
	return results, nil
}

// Batches returns the indexed batch ids.
func (s *RedisStore) Batches(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ids, err := s.client.SMembers(ctx, s.batchesKey()).Result()
	if err != nil {
		return nil, tserrors.Wrap(err, tserrors.CodeStoreFailed, "failed to list batches")
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
