package flem

import (
	"errors"
	"fmt"
)

// Frame FLEM 协议帧结构
// 格式：start(1) + cmd(1) + code(1) + len(2,LE) + payload(len) + crc16(2,LE)
// crc 覆盖范围：cmd、code、len、payload（不包含 start）
const (
	StartMarker = 0x55 // 帧起始标记，用于重新同步

	HeaderSize   = 5   // start + cmd + code + len
	CRCSize      = 2   // CRC-16/MODBUS
	MaxPayload   = 256 // 载荷上限（编译期固定，决定缓冲区大小）
	MaxFrameSize = HeaderSize + MaxPayload + CRCSize
)

var (
	// ErrPayloadTooLarge 编码时载荷超过 MaxPayload
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrFrameTooLarge 对端声明的长度超过接收缓冲区容量
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrIntegrityMismatch 校验失败
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrShortBuffer 目标缓冲区不足以容纳整帧
	ErrShortBuffer = errors.New("short buffer")
)

// Command 命令码（含义由应用定义）
type Command uint8

// 保留命令
const (
	CmdEvent    Command = 0x00 // 设备事件
	CmdIdentify Command = 0x01 // 查询设备标识
	CmdUser     Command = 0x10 // 应用自定义命令起始值
)

// Code 请求/应答标识：请求帧固定为 CodeRequest，其余为应答状态
type Code uint8

const (
	CodeOK             Code = 0x00
	CodeBusy           Code = 0x01
	CodeRequest        Code = 0x80
	CodeUnknownRequest Code = 0xFD
	CodeChecksumError  Code = 0xFE
	CodeError          Code = 0xFF
)

// IsResponse 判断是否为应答状态码
func (c Code) IsResponse() bool { return c != CodeRequest }

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeBusy:
		return "busy"
	case CodeRequest:
		return "request"
	case CodeUnknownRequest:
		return "unknown_request"
	case CodeChecksumError:
		return "checksum_error"
	case CodeError:
		return "error"
	default:
		return fmt.Sprintf("code_%02x", uint8(c))
	}
}

// Frame 解码后的帧视图。Payload 引用持有方的缓冲区，下次使用该组件前有效。
type Frame struct {
	Cmd     Command
	Code    Code
	Payload []byte
}

// IsResponse 判断是否为应答帧
func (f Frame) IsResponse() bool { return f.Code.IsResponse() }

// WireSize 返回该帧编码后的字节数
func (f Frame) WireSize() int { return FrameSize(len(f.Payload)) }

// FrameSize 返回指定载荷长度对应的整帧长度
func FrameSize(payloadLen int) int { return HeaderSize + payloadLen + CRCSize }

// Buffer 固定容量的帧缓冲区，一次分配、循环复用
type Buffer [MaxFrameSize]byte
