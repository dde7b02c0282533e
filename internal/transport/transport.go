package transport

import "errors"

// Transport 会话使用的字节通道（TCP 串口桥、设备连接、内存管道）
type Transport interface {
	// Write 写出字节，允许任意分块
	Write(p []byte) (int, error)
	// ReadAvailable 非阻塞读取已缓冲的字节；无数据时返回 0, nil
	ReadAvailable(p []byte) (int, error)
}

// ErrClosed 通道已关闭
var ErrClosed = errors.New("transport closed")

const defaultBufferSize = 4096

// ring 有界环形缓冲区，写满时丢弃最旧字节
type ring struct {
	buf     []byte
	head    int
	size    int
	dropped uint64
}

func newRing(n int) *ring {
	if n <= 0 {
		n = defaultBufferSize
	}
	return &ring{buf: make([]byte, n)}
}

func (r *ring) write(p []byte) {
	for _, b := range p {
		if r.size == len(r.buf) {
			r.head = (r.head + 1) % len(r.buf)
			r.size--
			r.dropped++
		}
		r.buf[(r.head+r.size)%len(r.buf)] = b
		r.size++
	}
}

func (r *ring) read(p []byte) int {
	n := 0
	for n < len(p) && r.size > 0 {
		p[n] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		n++
	}
	return n
}
