package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/flemlink/internal/config"
)

// freeAddr 取一个空闲的本地端口
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func testConfig(t *testing.T) *cfgpkg.Config {
	return &cfgpkg.Config{
		App:     cfgpkg.AppConfig{Name: "flemd", Env: "test"},
		HTTP:    cfgpkg.HTTPConfig{Addr: freeAddr(t), ReadTimeout: time.Second, WriteTimeout: time.Second},
		Metrics: cfgpkg.MetricsConfig{Enable: true, Path: "/metrics"},
		Queue:   cfgpkg.QueueConfig{Backend: cfgpkg.BackendMemory, ResultLimit: 100},
		Link: cfgpkg.LinkConfig{
			Addr:           freeAddr(t),
			DialTimeout:    time.Second,
			WriteTimeout:   time.Second,
			PollInterval:   time.Millisecond,
			ReconnectDelay: 20 * time.Millisecond,
			Breaker:        cfgpkg.BreakerConfig{Threshold: 100, Cooldown: time.Second},
			Session:        cfgpkg.SessionConfig{ResponseTimeout: 100 * time.Millisecond, MaxRetries: 3},
		},
		Simulator: cfgpkg.SimulatorConfig{
			Version:        "flemsim-test",
			MaxConnections: 2,
			PollInterval:   time.Millisecond,
		},
	}
}

func getJSON(t *testing.T, url string, out any) int {
	resp, err := http.Get(url)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestHostAndSimulator_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulator.Addr = cfg.Link.Addr
	log := zap.NewNop()

	ctx, cancel := context.WithCancel(context.Background())
	simDone := make(chan error, 1)
	hostDone := make(chan error, 1)
	go func() { simDone <- RunSimulatorContext(ctx, cfg, log) }()
	go func() { hostDone <- RunContext(ctx, cfg, log) }()
	defer func() {
		cancel()
		assert.NoError(t, <-hostDone)
		assert.NoError(t, <-simDone)
	}()

	base := "http://" + cfg.HTTP.Addr

	// 链路连通后 readyz 返回 200
	require.Eventually(t, func() bool {
		var st struct {
			Connected bool `json:"connected"`
		}
		return getJSON(t, base+"/api/v1/link", &st) == http.StatusOK && st.Connected
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, http.StatusOK, getJSON(t, base+"/readyz", nil))

	resp, err := http.Post(base+"/api/v1/commands", "application/json",
		bytes.NewBufferString(`{"cmd":1}`))
	require.NoError(t, err)
	var accepted struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var view struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Payload string `json:"payload"`
	}
	require.Eventually(t, func() bool {
		return getJSON(t, base+"/api/v1/commands/"+accepted.ID, &view) == http.StatusOK && view.Status == "done"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ok", view.Code)
	// 标识载荷以版本字符串开头
	assert.Contains(t, view.Payload, fmt.Sprintf("%x", "flemsim-test"))

	assert.Equal(t, http.StatusOK, getJSON(t, base+"/metrics", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, base+"/health", nil))
}

func TestRunContext_StopsWithoutDevice(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunContext(ctx, cfg, zap.NewNop()) }()

	base := "http://" + cfg.HTTP.Addr
	require.Eventually(t, func() bool {
		return getJSON(t, base+"/healthz", nil) == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	// 设备不可达：链路降级但仍就绪
	assert.Equal(t, http.StatusOK, getJSON(t, base+"/readyz", nil))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return")
	}
}

func TestRunContext_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis = cfgpkg.RedisConfig{Enabled: true, Addr: freeAddr(t), DialTimeout: 200 * time.Millisecond}
	err := RunContext(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
