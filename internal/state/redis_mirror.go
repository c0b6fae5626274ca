package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "positions:"

func Key(symbol string) string {
	return keyPrefix + symbol
}

// RedisMirror publishes position snapshots for other processes to read.
type RedisMirror struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisMirror(rdb redis.Cmdable, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) Publish(ctx context.Context, position Position) error {
	payload, err := sonic.Marshal(position)
	if err != nil {
		return fmt.Errorf("RedisMirror.Publish: %w", err)
	}
	if err := m.rdb.Set(ctx, Key(position.Symbol), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("RedisMirror.Publish: %w", err)
	}
	return nil
}

func (m *RedisMirror) Fetch(ctx context.Context, symbol string) (Position, bool, error) {
	cached, err := m.rdb.Get(ctx, Key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("RedisMirror.Fetch: %w", err)
	}
	var position Position
	if err := sonic.Unmarshal(cached, &position); err != nil {
		return Position{}, false, fmt.Errorf("RedisMirror.Fetch: %w", err)
	}
	return position, true, nil
}
