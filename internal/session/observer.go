package session

import "github.com/taoyao-code/flemlink/internal/protocol/flem"

// Observer 会话事件回调。所有回调在 Poll/Send 所在的 goroutine 中同步执行，
// 实现不应阻塞。
type Observer interface {
	// OnFrameError 收到无法成帧的数据（ErrFrameTooLarge / ErrIntegrityMismatch）
	OnFrameError(err error)
	// OnDispatchError 对端命令未注册（ErrUnhandledCommand）或处理器返回错误
	OnDispatchError(cmd flem.Command, err error)
	// OnStrayResponse 收到没有对应待决请求的应答
	OnStrayResponse(cmd flem.Command, code flem.Code)
	// OnPeerBusy 对端以 CodeBusy 应答，请求继续等待
	OnPeerBusy(cmd flem.Command)
	// OnRetry 超时重传，attempt 从 1 开始
	OnRetry(cmd flem.Command, attempt int)
	// OnTimeout 重试耗尽
	OnTimeout(cmd flem.Command, retries int)
	// OnTransportError Poll 内部写出失败（应答或重传）
	OnTransportError(err error)
	// OnResolved 待决请求收到应答
	OnResolved(cmd flem.Command, code flem.Code, retries int)
}

// NopObserver 忽略所有事件
type NopObserver struct{}

func (NopObserver) OnFrameError(error) {}
func (NopObserver) OnDispatchError(flem.Command, error) {}
func (NopObserver) OnStrayResponse(flem.Command, flem.Code) {}
func (NopObserver) OnPeerBusy(flem.Command) {}
func (NopObserver) OnRetry(flem.Command, int) {}
func (NopObserver) OnTimeout(flem.Command, int) {}
func (NopObserver) OnTransportError(error) {}
func (NopObserver) OnResolved(flem.Command, flem.Code, int) {}
