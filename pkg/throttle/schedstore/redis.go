package schedstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
)

const module = "schedstore"

// RedisConfig holds configuration for a Redis-backed store.
type RedisConfig struct {
	// Redis client shared with the rest of the process.
	Redis redis.UniversalClient

	// KeyPrefix namespaces schedule keys; a schedule is stored at
	// KeyPrefix + ":" + id.
	KeyPrefix string

	// Timeout bounds every Get. Defaults to 500ms.
	Timeout time.Duration

	// TTL is how long stored schedules live. Zero keeps them until deleted.
	TTL time.Duration
}

// Redis stores schedules as JSON documents in Redis.
type Redis struct {
	config RedisConfig
}

var _ throttle.ScheduleStore = (*Redis)(nil)

// NewRedis creates a store from config.
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.Redis == nil {
		return nil, errors.NewValidationError(module, "redis", nil, "redis client is required")
	}
	if config.KeyPrefix == "" {
		return nil, errors.NewValidationError(module, "keyPrefix", config.KeyPrefix, "cannot be empty").
			WithHint("use a prefix unique to this network, e.g. throttle:schedules")
	}
	if config.Timeout < 0 {
		return nil, errors.NewValidationError(module, "timeout", config.Timeout, "cannot be negative")
	}
	if config.Timeout == 0 {
		config.Timeout = 500 * time.Millisecond
	}
	return &Redis{config: config}, nil
}

func (r *Redis) key(id string) string {
	return r.config.KeyPrefix + ":" + id
}

// Put stores s under id.
func (r *Redis) Put(ctx context.Context, id string, s throttle.ScheduledTxn) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.NewOperationError(module, "Put", err).WithContext(id)
	}
	if err := r.config.Redis.Set(ctx, r.key(id), data, r.config.TTL).Err(); err != nil {
		return errors.NewOperationError(module, "Put", err).WithContext(id)
	}
	return nil
}

// Delete removes the schedule stored under id.
func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.config.Redis.Del(ctx, r.key(id)).Err(); err != nil {
		return errors.NewOperationError(module, "Delete", err).WithContext(id)
	}
	return nil
}

// Get fetches the schedule stored under id, waiting at most the configured
// timeout.
func (r *Redis) Get(id string) (*throttle.ScheduledTxn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.Timeout)
	defer cancel()
	return r.GetContext(ctx, id)
}

// GetContext is Get bounded by ctx instead of the configured timeout.
func (r *Redis) GetContext(ctx context.Context, id string) (*throttle.ScheduledTxn, error) {
	data, err := r.config.Redis.Get(ctx, r.key(id)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("schedule %s: %w", id, errors.ErrNotFound)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return nil, errors.NewOperationError(module, "Get", errors.ErrTimeout).WithContext(id)
	}
	if err != nil {
		return nil, errors.NewOperationError(module, "Get", err).WithContext(id)
	}

	var s throttle.ScheduledTxn
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.NewOperationError(module, "Get", err).WithContext(id)
	}
	return &s, nil
}
