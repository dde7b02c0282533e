package outbound

import (
	"container/heap"
	"context"
	"sync"
)

// MemoryQueue 进程内优先级队列：先按优先级，同优先级按入队顺序
type MemoryQueue struct {
	mu    sync.Mutex
	items msgHeap
	seq   uint64
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Enqueue(_ context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.items, queued{msg: msg, seq: q.seq})
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	return heap.Pop(&q.items).(queued).msg, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

type queued struct {
	msg *Message
	seq uint64
}

type msgHeap []queued

func (h msgHeap) Len() int { return len(h) }
func (h msgHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority < h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}
func (h msgHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *msgHeap) Push(x any) { *h = append(*h, x.(queued)) }
func (h *msgHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = queued{}
	*h = old[:n-1]
	return it
}
