package flem

// Handler 处理对端主动发来的命令。应答载荷写入 reply；
// 调用 reply.Discard() 表示不回应答帧。返回错误时以 CodeError 应答。
type Handler func(payload []byte, reply *Reply) error

// Table 路由表（cmd -> handler），按命令码固定索引。
// 启动时注册，分发期间只读，因此不加锁。
type Table struct {
	handlers [256]Handler
	n        int
}

func NewTable() *Table { return &Table{} }

// Register 注册指令处理器，重复注册将覆盖；h 为 nil 时注销
func (t *Table) Register(cmd Command, h Handler) {
	prev := t.handlers[cmd]
	t.handlers[cmd] = h
	switch {
	case prev == nil && h != nil:
		t.n++
	case prev != nil && h == nil:
		t.n--
	}
}

// Lookup 查找处理器
func (t *Table) Lookup(cmd Command) (Handler, bool) {
	h := t.handlers[cmd]
	return h, h != nil
}

// Len 已注册的处理器数量
func (t *Table) Len() int { return t.n }

// Reply 应答缓冲区（固定容量，复用）
type Reply struct {
	buf       [MaxPayload]byte
	n         int
	code      Code
	discarded bool
}

// Reset 清空，状态码恢复为 CodeOK
func (r *Reply) Reset() {
	r.n = 0
	r.code = CodeOK
	r.discarded = false
}

// Write 追加应答载荷，超出 MaxPayload 时不写入并返回 ErrPayloadTooLarge
func (r *Reply) Write(p []byte) (int, error) {
	if r.n+len(p) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	copy(r.buf[r.n:], p)
	r.n += len(p)
	return len(p), nil
}

// WriteByte 追加单字节
func (r *Reply) WriteByte(b byte) error {
	if r.n >= MaxPayload {
		return ErrPayloadTooLarge
	}
	r.buf[r.n] = b
	r.n++
	return nil
}

// SetCode 设置应答状态码
func (r *Reply) SetCode(c Code) { r.code = c }

// Code 当前应答状态码
func (r *Reply) Code() Code { return r.code }

// Discard 不发送应答帧
func (r *Reply) Discard() { r.discarded = true }

// Discarded 是否已放弃应答
func (r *Reply) Discarded() bool { return r.discarded }

// Bytes 已写入的应答载荷
func (r *Reply) Bytes() []byte { return r.buf[:r.n] }
