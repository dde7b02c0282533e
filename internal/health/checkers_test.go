package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/flemlink/internal/gateway"
)

type fakeLink struct{ st gateway.Status }

func (f fakeLink) Status() gateway.Status { return f.st }

func TestLinkChecker(t *testing.T) {
	tests := []struct {
		name string
		st   gateway.Status
		want Status
	}{
		{"已连接", gateway.Status{Connected: true, Breaker: "closed"}, StatusHealthy},
		{"重连中", gateway.Status{Breaker: "closed", LastError: "connection refused"}, StatusDegraded},
		{"半开试探", gateway.Status{Breaker: "half_open"}, StatusDegraded},
		{"熔断打开", gateway.Status{Breaker: "open"}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewLinkChecker(fakeLink{tt.st}).Check(context.Background())
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.st.Connected, res.Details["connected"])
			if tt.st.LastError != "" {
				assert.Equal(t, tt.st.LastError, res.Details["last_error"])
			}
		})
	}
}

type fakeRedis struct {
	err   error
	stats redis.PoolStats
}

func (f *fakeRedis) HealthCheck(context.Context) error { return f.err }
func (f *fakeRedis) Stats() *redis.PoolStats { return &f.stats }

func TestRedisChecker(t *testing.T) {
	c := NewRedisChecker(&fakeRedis{err: errors.New("dial tcp: refused")})
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Message, "refused")

	c = NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 8}})
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	c = NewRedisChecker(&fakeRedis{stats: redis.PoolStats{TotalConns: 10, IdleConns: 0}})
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "100.0%", res.Details["utilization"])
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(agg *Aggregator, path string) *httptest.ResponseRecorder {
		r := gin.New()
		RegisterHTTPRoutes(r, agg)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	healthy := NewAggregator(&mockChecker{"link", StatusHealthy})
	down := NewAggregator(&mockChecker{"link", StatusUnhealthy})

	assert.Equal(t, http.StatusOK, serve(healthy, "/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(down, "/health/live").Code)

	rr := serve(down, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks, "link")
}
