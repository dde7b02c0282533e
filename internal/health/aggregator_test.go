package health

import (
	"context"
	"testing"
	"time"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: "mock",
		Latency: time.Millisecond,
	}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name  string
		link  Status
		redis Status
		want  Status
		ready bool
	}{
		{"全部健康", StatusHealthy, StatusHealthy, StatusHealthy, true},
		{"部分降级", StatusDegraded, StatusHealthy, StatusDegraded, true},
		{"部分不健康", StatusHealthy, StatusUnhealthy, StatusUnhealthy, false},
		{"降级且不健康", StatusDegraded, StatusUnhealthy, StatusUnhealthy, false},
		{"未知状态按不健康", Status("unknown"), StatusHealthy, StatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(
				&mockChecker{ComponentLink, tt.link},
				&mockChecker{ComponentRedis, tt.redis},
			)
			if got := agg.OverallStatus(context.Background()); got != tt.want {
				t.Errorf("期望%v，实际: %v", tt.want, got)
			}
			if got := agg.Ready(context.Background()); got != tt.ready {
				t.Errorf("Ready 期望%v，实际: %v", tt.ready, got)
			}
		})
	}

	t.Run("CheckAll并发执行", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"check1", StatusHealthy},
			&mockChecker{"check2", StatusHealthy},
			&mockChecker{"check3", StatusHealthy},
		)

		results := agg.CheckAll(context.Background())
		if len(results) != 3 {
			t.Errorf("期望3个结果，实际: %d", len(results))
		}
		for name, result := range results {
			if result.Status != StatusHealthy {
				t.Errorf("%s: 期望StatusHealthy，实际: %v", name, result.Status)
			}
		}
	})

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy})
		agg.AddChecker(&mockChecker{"added", StatusDegraded})

		report := agg.Report(context.Background())
		if len(report.Checks) != 2 {
			t.Errorf("期望2个结果，实际: %d", len(report.Checks))
		}
		if report.Status != StatusDegraded {
			t.Errorf("期望StatusDegraded，实际: %v", report.Status)
		}
	})

	t.Run("无检查器视为健康", func(t *testing.T) {
		agg := NewAggregator()
		if !agg.Alive() || !agg.Ready(context.Background()) {
			t.Error("空聚合器应当存活且就绪")
		}
	})
}
