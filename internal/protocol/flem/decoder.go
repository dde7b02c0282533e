package flem

import "bytes"

// State 解码器状态
type State uint8

const (
	StateSeekingStart     State = iota // 丢弃字节直到遇到起始标记
	StateReadingHeader                 // 读取 cmd、code、len
	StateReadingPayload                // 读取 len 个载荷字节
	StateReadingIntegrity              // 读取并校验 CRC
)

func (s State) String() string {
	switch s {
	case StateSeekingStart:
		return "seeking_start"
	case StateReadingHeader:
		return "reading_header"
	case StateReadingPayload:
		return "reading_payload"
	case StateReadingIntegrity:
		return "reading_integrity"
	default:
		return "unknown"
	}
}

// Result 单次投喂的结果
type Result uint8

const (
	ResultNeedMore Result = iota // 帧尚未完整，状态保留
	ResultComplete               // 帧完整且校验通过，可通过 Frame() 读取
	ResultError                  // 帧被丢弃，解码器已自动回到 StateSeekingStart
)

// DecoderStats 解码统计
type DecoderStats struct {
	Frames          uint64 `json:"frames"`
	DiscardedBytes  uint64 `json:"discarded_bytes"`
	FrameTooLarge   uint64 `json:"frame_too_large"`
	IntegrityErrors uint64 `json:"integrity_errors"`
}

// Decoder 流式解码器：逐字节重建帧，处理半包、粘包与噪声。
// 噪声中的 0x55 可能被误认为帧头；该伪帧出错时，其后已读字节会退回重放，
// 因此被伪帧吞掉的真实帧仍能解出。
// 所有缓冲区在结构体内固定分配，零值即可使用。非并发安全。
type Decoder struct {
	state   State
	buf     Buffer // 自起始标记起已读的字节
	n       int
	length  int
	running uint16

	// 待重放字节 replay[rpos:rend]，优先于新输入
	replay Buffer
	rpos   int
	rend   int

	frame Frame
	stats DecoderStats
}

// NewDecoder 创建解码器
func NewDecoder() *Decoder { return &Decoder{} }

// Feed 投喂新到达的字节，最多消费到一帧结束为止。
// 返回已消费字节数；p[n:] 未被读取，应在下一次调用时继续投喂。
// 有待重放字节时先处理它们，此时可能返回 n=0；Buffered() > 0 时即使没有新数据也应继续调用。
// ResultError 时 err 为 ErrFrameTooLarge 或 ErrIntegrityMismatch。
func (d *Decoder) Feed(p []byte) (int, Result, error) {
	if res, err := d.drain(); res != ResultNeedMore {
		return 0, res, err
	}
	for i, b := range p {
		res, err := d.step(b)
		if res != ResultNeedMore {
			return i + 1, res, err
		}
	}
	return len(p), ResultNeedMore, nil
}

// FeedByte 投喂单个字节（适合中断逐字节接收）。
// 有待重放字节时 b 排在其后，一次调用最多返回一个结果。
func (d *Decoder) FeedByte(b byte) (Result, error) {
	if d.rpos == d.rend {
		return d.step(b)
	}
	if d.rend == len(d.replay) {
		d.rend = copy(d.replay[:], d.replay[d.rpos:d.rend])
		d.rpos = 0
	}
	d.replay[d.rend] = b
	d.rend++
	return d.drain()
}

// Buffered 等待重放的字节数
func (d *Decoder) Buffered() int { return d.rend - d.rpos }

// drain 重放待处理字节，直到产生结果或耗尽
func (d *Decoder) drain() (Result, error) {
	for d.rpos < d.rend {
		b := d.replay[d.rpos]
		d.rpos++
		if res, err := d.step(b); res != ResultNeedMore {
			return res, err
		}
	}
	d.rpos, d.rend = 0, 0
	return ResultNeedMore, nil
}

func (d *Decoder) step(b byte) (Result, error) {
	if d.state == StateSeekingStart {
		if b != StartMarker {
			d.stats.DiscardedBytes++
			return ResultNeedMore, nil
		}
		d.begin()
		return ResultNeedMore, nil
	}

	d.buf[d.n] = b
	d.n++

	switch d.state {
	case StateReadingHeader:
		d.running = crcUpdate(d.running, b)
		if d.n < HeaderSize {
			return ResultNeedMore, nil
		}
		d.length = int(d.buf[3]) | int(d.buf[4])<<8
		if d.length > MaxPayload {
			// 长度字段损坏时立即丢弃，避免无界等待
			d.stats.FrameTooLarge++
			return d.fail(ErrFrameTooLarge)
		}
		if d.length == 0 {
			d.state = StateReadingIntegrity
		} else {
			d.state = StateReadingPayload
		}

	case StateReadingPayload:
		d.running = crcUpdate(d.running, b)
		if d.n == HeaderSize+d.length {
			d.state = StateReadingIntegrity
		}

	case StateReadingIntegrity:
		if d.n < HeaderSize+d.length+CRCSize {
			return ResultNeedMore, nil
		}
		got := uint16(d.buf[d.n-2]) | uint16(d.buf[d.n-1])<<8
		if got != d.running {
			d.stats.IntegrityErrors++
			return d.fail(ErrIntegrityMismatch)
		}
		d.state = StateSeekingStart
		d.frame = Frame{
			Cmd:     Command(d.buf[1]),
			Code:    Code(d.buf[2]),
			Payload: d.buf[HeaderSize : HeaderSize+d.length],
		}
		d.stats.Frames++
		return ResultComplete, nil
	}
	return ResultNeedMore, nil
}

// begin 遇到起始标记，重置全部计数器
func (d *Decoder) begin() {
	d.state = StateReadingHeader
	d.buf[0] = StartMarker
	d.n = 1
	d.length = 0
	d.running = crcInit
}

// fail 丢弃当前帧。起始标记之后若还有 0x55，从该处起的字节放回重放队列头部。
// 伪帧字节数加上剩余重放字节数不超过 MaxFrameSize。
func (d *Decoder) fail(err error) (Result, error) {
	d.state = StateSeekingStart
	if k := bytes.IndexByte(d.buf[1:d.n], StartMarker); k >= 0 {
		k++
		m := d.n - k
		r := d.rend - d.rpos
		copy(d.replay[m:m+r], d.replay[d.rpos:d.rend])
		copy(d.replay[:m], d.buf[k:d.n])
		d.rpos, d.rend = 0, m+r
	}
	d.n = 0
	return ResultError, err
}

// Frame 返回最近一次完成的帧；Payload 在下一次投喂前有效
func (d *Decoder) Frame() Frame { return d.frame }

// State 当前状态
func (d *Decoder) State() State { return d.state }

// Stats 返回累计统计
func (d *Decoder) Stats() DecoderStats { return d.stats }

// Reset 丢弃进行中的帧与待重放字节，回到 StateSeekingStart（统计保留）
func (d *Decoder) Reset() {
	d.state = StateSeekingStart
	d.n, d.length = 0, 0
	d.rpos, d.rend = 0, 0
	d.frame = Frame{}
}
