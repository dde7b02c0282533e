package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/flemlink/internal/metrics"
	"github.com/taoyao-code/flemlink/internal/outbound"
	"github.com/taoyao-code/flemlink/internal/protocol/flem"
	"github.com/taoyao-code/flemlink/internal/session"
	"github.com/taoyao-code/flemlink/internal/simulator"
	"github.com/taoyao-code/flemlink/internal/transport"
)

func testConfig() Config {
	return Config{
		PollInterval:   time.Millisecond,
		ReconnectDelay: 5 * time.Millisecond,
		Session:        session.Config{ResponseTimeout: 30 * time.Millisecond, MaxRetries: 2},
	}
}

// startLink 启动链路并在另一端运行模拟设备
func startLink(t *testing.T, opts ...Option) (*Link, *transport.PipeEnd, *metrics.LinkMetrics) {
	t.Helper()
	hostEnd, devEnd := transport.Pipe()

	id, err := flem.NewIdentity("link-test", flem.MaxFrameSize)
	require.NoError(t, err)
	dev := simulator.NewDevice(id, simulator.Config{PollInterval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var dialed atomic.Bool
	dial := func(context.Context) (transport.Transport, error) {
		if dialed.Swap(true) {
			return nil, errors.New("already dialed")
		}
		return hostEnd, nil
	}

	m := metrics.NewLinkMetrics(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m)}, opts...)
	l := NewLink(dial, outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(0), testConfig(), opts...)

	runDone := make(chan error, 1)
	devDone := make(chan struct{})
	go func() { runDone <- l.Run(ctx) }()
	go func() { _ = dev.Serve(ctx, devEnd); close(devDone) }()

	t.Cleanup(func() {
		cancel()
		assert.ErrorIs(t, <-runDone, context.Canceled)
		<-devDone
	})
	return l, devEnd, m
}

func submit(t *testing.T, l *Link, cmd flem.Command, payload []byte) string {
	t.Helper()
	msg, err := outbound.NewMessage(cmd, payload, 0)
	require.NoError(t, err)
	require.NoError(t, l.Submit(context.Background(), msg))
	return msg.ID
}

func waitResult(t *testing.T, l *Link, id string) *outbound.Result {
	t.Helper()
	var res *outbound.Result
	require.Eventually(t, func() bool {
		r, err := l.Result(context.Background(), id)
		if err != nil {
			return false
		}
		res = r
		return r.Status == outbound.StatusDone || r.Status == outbound.StatusFailed
	}, 2*time.Second, 2*time.Millisecond)
	return res
}

func TestLink_CommandRoundTrip(t *testing.T) {
	l, _, m := startLink(t)

	echo := submit(t, l, simulator.CmdEcho, []byte("abc"))
	sum := submit(t, l, simulator.CmdSum, []byte{10, 20})
	unknown := submit(t, l, 0x70, nil)

	r := waitResult(t, l, echo)
	assert.Equal(t, outbound.StatusDone, r.Status)
	assert.Equal(t, flem.CodeOK, r.Code)
	assert.Equal(t, []byte("abc"), r.Payload)

	r = waitResult(t, l, sum)
	assert.Equal(t, uint32(30), binary.LittleEndian.Uint32(r.Payload))

	r = waitResult(t, l, unknown)
	assert.Equal(t, outbound.StatusDone, r.Status)
	assert.Equal(t, flem.CodeUnknownRequest, r.Code)

	st := l.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, uint64(3), st.Sent)
	assert.Equal(t, uint64(3), st.Completed)
	assert.Equal(t, "closed", st.Breaker)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))
}

func TestLink_BusyIsRetried(t *testing.T) {
	l, _, m := startLink(t)

	r := waitResult(t, l, submit(t, l, simulator.CmdBusy, []byte{1}))
	assert.Equal(t, outbound.StatusDone, r.Status)
	assert.Equal(t, flem.CodeOK, r.Code)
	assert.Equal(t, 1, r.Retries)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeerBusy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))
}

// silentDevice 设备侧会话，回显命令不应答
func silentDevice(ctx context.Context, devEnd *transport.PipeEnd) {
	tbl := flem.NewTable()
	tbl.Register(simulator.CmdEcho, func(p []byte, r *flem.Reply) error { r.Discard(); return nil })
	dev := session.New(devEnd, tbl, session.DefaultConfig())

	buf := make([]byte, 512)
	for ctx.Err() == nil {
		n, _ := devEnd.ReadAvailable(buf)
		_, _ = dev.Poll(buf[:n], 0)
		time.Sleep(time.Millisecond)
	}
}

func TestLink_Timeout(t *testing.T) {
	tests := []struct {
		name        string
		maxRetries  int
		wantRetries int
	}{
		{"重传两次", 2, 2},
		{"负数按零处理", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hostEnd, devEnd := transport.Pipe()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go silentDevice(ctx, devEnd)

			cfg := testConfig()
			cfg.Session.MaxRetries = tt.maxRetries
			m := metrics.NewLinkMetrics(prometheus.NewRegistry())
			dial := func(context.Context) (transport.Transport, error) { return hostEnd, nil }
			l := NewLink(dial, outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(0), cfg, WithMetrics(m))
			go func() { _ = l.Run(ctx) }()

			r := waitResult(t, l, submit(t, l, simulator.CmdEcho, []byte{1}))
			assert.Equal(t, outbound.StatusFailed, r.Status)
			assert.Contains(t, r.Error, session.ErrTimeout.Error())
			assert.Equal(t, tt.wantRetries, r.Retries)
			assert.Equal(t, float64(tt.wantRetries), testutil.ToFloat64(m.Retries))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Timeouts))
		})
	}
}

type failingQueue struct{ outbound.Queue }

func (failingQueue) Enqueue(context.Context, *outbound.Message) error { return errors.New("queue full") }

func TestLink_SubmitEnqueueFailure(t *testing.T) {
	dial := func(context.Context) (transport.Transport, error) { return nil, errors.New("not dialed") }
	l := NewLink(dial, failingQueue{outbound.NewMemoryQueue()}, outbound.NewMemoryResultStore(0), testConfig())

	msg, err := outbound.NewMessage(simulator.CmdEcho, []byte{1}, 0)
	require.NoError(t, err)
	require.Error(t, l.Submit(context.Background(), msg))

	r, err := l.Result(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, outbound.StatusFailed, r.Status, "no pending result left behind")
	assert.Equal(t, "queue full", r.Error)
}

func TestLink_InFlightFailsWhenLinkLost(t *testing.T) {
	hostEnd, devEnd := transport.Pipe()
	var dials atomic.Int32
	dial := func(context.Context) (transport.Transport, error) {
		if dials.Add(1) > 1 {
			return nil, errors.New("device gone")
		}
		return hostEnd, nil
	}
	cfg := testConfig()
	cfg.Session.ResponseTimeout = time.Second
	l := NewLink(dial, outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(0), cfg,
		WithBreaker(NewCircuitBreaker(1000, time.Hour)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	id := submit(t, l, simulator.CmdEcho, []byte{1})
	require.Eventually(t, func() bool { return devEnd.Buffered() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, devEnd.Close())

	r := waitResult(t, l, id)
	assert.Equal(t, outbound.StatusFailed, r.Status)
	assert.Equal(t, ErrLinkLost.Error(), r.Error)

	require.Eventually(t, func() bool {
		st := l.Status()
		return !st.Connected && st.LastError == "device gone"
	}, time.Second, time.Millisecond)
}

func TestLink_DialFailuresTripBreaker(t *testing.T) {
	dial := func(context.Context) (transport.Transport, error) { return nil, errors.New("refused") }
	cb := NewCircuitBreaker(2, time.Hour)
	l := NewLink(dial, outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(0), testConfig(), WithBreaker(cb))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.Status().Breaker == "open" }, time.Second, time.Millisecond)
	assert.False(t, l.Status().Connected)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLink_AnswersPeerEvents(t *testing.T) {
	hostEnd, devEnd := transport.Pipe()
	id, _ := flem.NewIdentity("evt", 64)
	dev := simulator.NewDevice(id, simulator.Config{PollInterval: time.Millisecond, EventInterval: 5 * time.Millisecond}, nil)

	var events atomic.Int32
	tbl := flem.NewTable()
	tbl.Register(flem.CmdEvent, func(p []byte, r *flem.Reply) error {
		events.Add(1)
		return nil
	})
	dial := func(context.Context) (transport.Transport, error) { return hostEnd, nil }
	l := NewLink(dial, outbound.NewMemoryQueue(), outbound.NewMemoryResultStore(0), testConfig(), WithHandlers(tbl))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = dev.Serve(ctx, devEnd) }()
	go func() { _ = l.Run(ctx) }()

	require.Eventually(t, func() bool { return events.Load() >= 2 }, 2*time.Second, time.Millisecond)
}
