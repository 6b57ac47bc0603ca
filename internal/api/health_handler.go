package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/contact-import/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is any dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name     string
	pinger   Pinger
	timeout  time.Duration
	slow     time.Duration
	critical bool
}

// HealthChecker checks the contact database, Redis and the raw upload
// archive. Any dependency can be nil; it then reports "not configured".
type HealthChecker struct {
	deps      []dependency
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db, redis, storage Pinger) *HealthChecker {
	return &HealthChecker{
		deps: []dependency{
			{name: "database", pinger: db, timeout: 3 * time.Second, slow: time.Second, critical: true},
			{name: "redis", pinger: redis, timeout: 2 * time.Second, slow: 500 * time.Millisecond},
			{name: "storage", pinger: storage, timeout: 3 * time.Second, slow: time.Second, critical: true},
		},
		startTime: time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth returns the health of all components. It always answers 200;
// the status field conveys health.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.JSON(w, http.StatusOK, HealthStatus{
		Status:  hc.overallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := hc.overallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.JSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, len(hc.deps))
	for _, d := range hc.deps {
		go func() { ch <- result{d.name, checkDependency(ctx, d)} }()
	}

	checks := make(map[string]ComponentCheck, len(hc.deps))
	for range hc.deps {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func checkDependency(ctx context.Context, d dependency) ComponentCheck {
	if d.pinger == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.pinger.Ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > d.slow {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}
	return ComponentCheck{Status: status, Latency: latency.String(), Message: msg}
}

// overallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if a configured critical dependency is down
//   - "degraded"  if any check is degraded or a non-critical check is down
//   - "healthy"   otherwise
func (hc *HealthChecker) overallStatus(checks map[string]ComponentCheck) string {
	for _, d := range hc.deps {
		c := checks[d.name]
		if d.critical && c.Status == "down" && c.Message != "not configured" {
			return "unhealthy"
		}
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
