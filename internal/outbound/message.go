package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/flemlink/internal/protocol/flem"
)

// ErrInvalidPriority 优先级超出范围
var ErrInvalidPriority = errors.New("invalid priority")

// Message 待下发的命令
type Message struct {
	ID        string       `json:"id"`
	Cmd       flem.Command `json:"cmd"`
	Payload   []byte       `json:"payload"`
	Priority  int          `json:"priority"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewMessage 创建消息；priority 为 0 时按命令码取默认优先级
func NewMessage(cmd flem.Command, payload []byte, priority int) (*Message, error) {
	if len(payload) > flem.MaxPayload {
		return nil, fmt.Errorf("payload %d bytes: %w", len(payload), flem.ErrPayloadTooLarge)
	}
	if priority == 0 {
		priority = CommandPriority(cmd)
	}
	if !ValidPriority(priority) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, priority)
	}
	return &Message{
		ID:        uuid.NewString(),
		Cmd:       cmd,
		Payload:   append([]byte(nil), payload...),
		Priority:  priority,
		CreatedAt: time.Now(),
	}, nil
}

// Queue 下行命令队列。Dequeue 非阻塞，队列为空时返回 nil, nil。
type Queue interface {
	Enqueue(ctx context.Context, msg *Message) error
	Dequeue(ctx context.Context) (*Message, error)
	Len(ctx context.Context) (int64, error)
}
