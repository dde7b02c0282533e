package flem

// Encode 将一帧编码到 dst，返回写入字节数。
// 载荷超限或 dst 容量不足时在写入任何字节之前返回错误，不会产生半帧。
func Encode(dst []byte, cmd Command, code Code, payload []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	total := FrameSize(len(payload))
	if len(dst) < total {
		return 0, ErrShortBuffer
	}

	length := uint16(len(payload))
	dst[0] = StartMarker
	dst[1] = byte(cmd)
	dst[2] = byte(code)
	dst[3] = byte(length)
	dst[4] = byte(length >> 8)
	copy(dst[HeaderSize:], payload)

	crc := Checksum(cmd, code, length, payload)
	off := HeaderSize + len(payload)
	dst[off] = byte(crc)
	dst[off+1] = byte(crc >> 8)
	return total, nil
}

// Encoder 持有一个固定帧缓冲区的编码器，重复使用不扩容
type Encoder struct {
	buf Buffer
	n   int
}

// Encode 编码到内部缓冲区，返回的切片在下次 Encode 前有效
func (e *Encoder) Encode(cmd Command, code Code, payload []byte) ([]byte, error) {
	n, err := Encode(e.buf[:], cmd, code, payload)
	if err != nil {
		return nil, err
	}
	e.n = n
	return e.buf[:n], nil
}

// EncodeRequest 编码请求帧
func (e *Encoder) EncodeRequest(cmd Command, payload []byte) ([]byte, error) {
	return e.Encode(cmd, CodeRequest, payload)
}

// EncodeResponse 编码应答帧
func (e *Encoder) EncodeResponse(cmd Command, code Code, payload []byte) ([]byte, error) {
	return e.Encode(cmd, code, payload)
}

// Bytes 返回最近一次编码的帧（用于重传）
func (e *Encoder) Bytes() []byte { return e.buf[:e.n] }

// Reset 清空最近一次编码记录
func (e *Encoder) Reset() { e.n = 0 }
