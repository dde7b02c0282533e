package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/flemlink/internal/outbound"
)

// 优先级权重：毫秒时间戳约 1.7e12，乘以 1e13 后优先级始终主导排序，
// 且 score 仍在 float64 精确整数范围内
const priorityWeight = 1e13

// OutboundQueue Redis下行队列（Sorted Set，按优先级+时间排序），实现 outbound.Queue
type OutboundQueue struct {
	client *Client
	key    string
}

var _ outbound.Queue = (*OutboundQueue)(nil)

// NewOutboundQueue 创建Redis下行队列，prefix 为键前缀（如 "flem:"）
func NewOutboundQueue(client *Client, prefix string) *OutboundQueue {
	return &OutboundQueue{client: client, key: prefix + "outbound:queue"}
}

// Enqueue 入队
func (q *OutboundQueue) Enqueue(ctx context.Context, msg *outbound.Message) error {
	member, err := encodeMember(msg)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{Score: score(msg), Member: member}).Err()
}

// Dequeue 出队，队列为空时返回 nil, nil
func (q *OutboundQueue) Dequeue(ctx context.Context) (*outbound.Message, error) {
	// 使用ZPOPMIN原子操作（Redis 5.0+）
	result, err := q.client.ZPopMin(ctx, q.key, 1).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	member, ok := result[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T", result[0].Member)
	}
	msg, err := parseMember(member)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

// Len 待处理消息数量
func (q *OutboundQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

// score 数值越小越先出队
func score(msg *outbound.Message) float64 {
	return float64(msg.Priority)*priorityWeight + float64(msg.CreatedAt.UnixMilli())
}

// encodeMember 格式: "ID:JSON"，ID 保证相同内容的消息不会合并
func encodeMember(msg *outbound.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return msg.ID + ":" + string(data), nil
}

func parseMember(member string) (*outbound.Message, error) {
	idx := strings.IndexByte(member, ':')
	if idx < 0 {
		return nil, fmt.Errorf("invalid message format")
	}
	var msg outbound.Message
	if err := json.Unmarshal([]byte(member[idx+1:]), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
