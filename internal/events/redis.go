package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"AegisVault/internal/model"
)

// RedisPublisher fans observations out over Redis pub/sub and keeps a capped
// list of the most recent ones for late subscribers.
type RedisPublisher struct {
	Client   *redis.Client
	Channel  string
	ListKey  string
	ListSize int64
}

func NewRedisPublisher(opt *redis.Options, channel, listKey string, listSize int64) *RedisPublisher {
	if listSize <= 0 {
		listSize = 500
	}
	return &RedisPublisher{
		Client:   redis.NewClient(opt),
		Channel:  channel,
		ListKey:  listKey,
		ListSize: listSize,
	}
}

func (p *RedisPublisher) Name() string { return "redis" }

// Ping checks the server is reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

func (p *RedisPublisher) Handle(ctx context.Context, obs model.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	pipe := p.Client.TxPipeline()
	pipe.Publish(ctx, p.Channel, data)
	if p.ListKey != "" {
		pipe.LPush(ctx, p.ListKey, data)
		pipe.LTrim(ctx, p.ListKey, 0, p.ListSize-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Recent returns up to n observations, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, n int64) ([]model.Observation, error) {
	if p.ListKey == "" || n <= 0 {
		return nil, nil
	}
	items, err := p.Client.LRange(ctx, p.ListKey, 0, n-1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.Observation, 0, len(items))
	for _, it := range items {
		var obs model.Observation
		if err := json.Unmarshal([]byte(it), &obs); err != nil {
			return nil, fmt.Errorf("decode observation: %w", err)
		}
		out = append(out, obs)
	}
	return out, nil
}

func (p *RedisPublisher) Close() error {
	return p.Client.Close()
}
