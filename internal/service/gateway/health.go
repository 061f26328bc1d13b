package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// HealthChecker is the part of the gateway the monitor needs.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// StatusView receives the backend status indicator updates.
type StatusView interface {
	SetBackendStatus(online bool)
}

// Monitor 定期检查后端状态并更新状态指示。
type Monitor struct {
	checker HealthChecker
	view    StatusView
	limiter *rate.Limiter
}

// NewMonitor creates a monitor that checks at most once per interval. A
// non-positive interval means only the first check is performed.
func NewMonitor(checker HealthChecker, view StatusView, interval time.Duration) *Monitor {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Monitor{
		checker: checker,
		view:    view,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// CheckOnce runs one health check and reports it to the view.
func (m *Monitor) CheckOnce(ctx context.Context) bool {
	// 手动检查也占用一个令牌，避免紧接着的定时检查重复请求
	m.limiter.Allow()
	online := m.checker.HealthCheck(ctx)
	if online {
		log.Debug("backend online")
	} else {
		log.Warn("backend offline")
	}
	m.view.SetBackendStatus(online)
	return online
}

// Run checks once per interval until ctx is done; the first check is
// immediate unless CheckOnce just ran. With no interval configured it checks
// once and returns.
func (m *Monitor) Run(ctx context.Context) {
	if m.limiter.Limit() == rate.Inf {
		m.CheckOnce(ctx)
		return
	}

	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return
		}
		m.CheckOnce(ctx)
	}
}
