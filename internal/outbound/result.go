package outbound

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/flemlink/internal/protocol/flem"
)

// ErrNotFound 结果不存在
var ErrNotFound = errors.New("result not found")

// Status 命令执行状态
type Status string

const (
	StatusPending Status = "pending" // 已入队
	StatusSent    Status = "sent"    // 已发出，等待应答
	StatusDone    Status = "done"    // 收到应答
	StatusFailed  Status = "failed"  // 超时或发送失败
)

// Result 命令执行结果
type Result struct {
	ID        string       `json:"id"`
	Cmd       flem.Command `json:"cmd"`
	Status    Status       `json:"status"`
	Code      flem.Code    `json:"code"`
	Payload   []byte       `json:"payload,omitempty"`
	Error     string       `json:"error,omitempty"`
	Retries   int          `json:"retries"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ResultStore 结果存储
type ResultStore interface {
	Put(ctx context.Context, r *Result) error
	Get(ctx context.Context, id string) (*Result, error)
}

// PendingResult 入队时的初始结果
func PendingResult(msg *Message) *Result {
	return &Result{ID: msg.ID, Cmd: msg.Cmd, Status: StatusPending, UpdatedAt: time.Now()}
}

// MemoryResultStore 进程内结果存储，超过容量时淘汰最早写入的记录
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]*Result
	order   []string
	limit   int
}

// NewMemoryResultStore limit<=0 表示不限量
func NewMemoryResultStore(limit int) *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]*Result), limit: limit}
}

func (s *MemoryResultStore) Put(_ context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	cp.Payload = append([]byte(nil), r.Payload...)
	if _, ok := s.results[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.results[r.ID] = &cp

	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryResultStore) Get(_ context.Context, id string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}
