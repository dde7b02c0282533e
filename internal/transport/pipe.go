package transport

import (
	"sync"
	"sync/atomic"
)

// PipeEnd 内存管道的一端，一端写入的字节出现在另一端的 ReadAvailable 中
type PipeEnd struct {
	mu     sync.Mutex
	in     *ring
	peer   *PipeEnd
	closed atomic.Bool
}

// Pipe 创建一对互联的内存传输端（测试与本地回环模拟）
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{in: newRing(defaultBufferSize)}
	b := &PipeEnd{in: newRing(defaultBufferSize)}
	a.peer, b.peer = b, a
	return a, b
}

func (e *PipeEnd) Write(p []byte) (int, error) {
	if e.closed.Load() || e.peer.closed.Load() {
		return 0, ErrClosed
	}
	e.peer.mu.Lock()
	e.peer.in.write(p)
	e.peer.mu.Unlock()
	return len(p), nil
}

func (e *PipeEnd) ReadAvailable(p []byte) (int, error) {
	e.mu.Lock()
	n := e.in.read(p)
	e.mu.Unlock()
	if n == 0 && (e.closed.Load() || e.peer.closed.Load()) {
		return 0, ErrClosed
	}
	return n, nil
}

// Buffered 本端待读字节数
func (e *PipeEnd) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.in.size
}

func (e *PipeEnd) Close() error {
	e.closed.Store(true)
	return nil
}
