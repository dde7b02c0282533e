package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/flemlink/internal/outbound"
)

// ResultStore 命令结果存储，每条结果一个 JSON 键并带 TTL
type ResultStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

var _ outbound.ResultStore = (*ResultStore)(nil)

// NewResultStore ttl<=0 表示不过期
func NewResultStore(client *Client, prefix string, ttl time.Duration) *ResultStore {
	if ttl < 0 {
		ttl = 0
	}
	return &ResultStore{client: client, prefix: prefix + "result:", ttl: ttl}
}

func (s *ResultStore) Put(ctx context.Context, r *outbound.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.client.Set(ctx, s.prefix+r.ID, data, s.ttl).Err()
}

func (s *ResultStore) Get(ctx context.Context, id string) (*outbound.Result, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, outbound.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r outbound.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &r, nil
}
