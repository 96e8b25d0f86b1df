package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds each check
const DefaultTimeout = 5 * time.Second

// Report pairs a checker name with its result
type Report struct {
	Name   string  `json:"name" yaml:"name"`
	Result *Result `json:"result" yaml:"result"`
}

// Manager runs checks in parallel with timeouts and collects all results.
type Manager struct {
	checkers []Checker
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager creates a manager with DefaultTimeout per check
func NewManager(checkers ...Checker) *Manager {
	return &Manager{
		checkers: checkers,
		timeout:  DefaultTimeout,
	}
}

// WithTimeout sets a custom timeout for health checks.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	return m
}

// AddChecker registers a new health checker.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Check runs every checker concurrently. Reports keep registration order.
// A checker that overruns its timeout and returns nothing is reported unhealthy.
func (m *Manager) Check(ctx context.Context) []Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	timeout := m.timeout
	m.mu.RUnlock()

	reports := make([]Report, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			result := c.Check(checkCtx)
			if result == nil {
				result = Unhealthy("check returned no result")
			}
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}
			reports[i] = Report{Name: c.Name(), Result: result}
		}(i, checker)
	}
	wg.Wait()
	return reports
}

// Overall is unhealthy if any report is, degraded if any is, healthy otherwise
func Overall(reports []Report) Status {
	status := StatusHealthy
	for _, r := range reports {
		switch r.Result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
