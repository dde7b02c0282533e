package flem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Identity 设备标识（CmdIdentify 应答载荷）
// 格式：version(30, ASCII, NUL 填充) + maxPacketSize(2, LE)
const (
	IdentityVersionSize = 30
	IdentitySize        = IdentityVersionSize + 2
)

// ErrBadIdentity 标识载荷格式错误
var ErrBadIdentity = errors.New("bad identity payload")

type Identity struct {
	Version       string
	MaxPacketSize uint16
}

// NewIdentity 创建设备标识，版本字符串不得超过 IdentityVersionSize 字节
func NewIdentity(version string, maxPacketSize uint16) (Identity, error) {
	if len(version) > IdentityVersionSize {
		return Identity{}, fmt.Errorf("version %q exceeds %d bytes", version, IdentityVersionSize)
	}
	return Identity{Version: version, MaxPacketSize: maxPacketSize}, nil
}

// MarshalTo 写入 dst，返回写入字节数
func (id Identity) MarshalTo(dst []byte) (int, error) {
	if len(dst) < IdentitySize {
		return 0, ErrShortBuffer
	}
	if len(id.Version) > IdentityVersionSize {
		return 0, ErrBadIdentity
	}
	n := copy(dst, id.Version)
	for ; n < IdentityVersionSize; n++ {
		dst[n] = 0
	}
	binary.LittleEndian.PutUint16(dst[IdentityVersionSize:], id.MaxPacketSize)
	return IdentitySize, nil
}

// ParseIdentity 解析 CmdIdentify 应答载荷
func ParseIdentity(p []byte) (Identity, error) {
	if len(p) != IdentitySize {
		return Identity{}, ErrBadIdentity
	}
	version := p[:IdentityVersionSize]
	if i := bytes.IndexByte(version, 0); i >= 0 {
		version = version[:i]
	}
	return Identity{
		Version:       string(version),
		MaxPacketSize: binary.LittleEndian.Uint16(p[IdentityVersionSize:]),
	}, nil
}

// IdentityHandler 返回应答 CmdIdentify 的处理器
func IdentityHandler(id Identity) Handler {
	var raw [IdentitySize]byte
	n, err := id.MarshalTo(raw[:])
	return func(_ []byte, reply *Reply) error {
		if err != nil {
			return err
		}
		_, werr := reply.Write(raw[:n])
		return werr
	}
}
