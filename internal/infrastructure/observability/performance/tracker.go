package performance

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Tracker aggregates completed markers into per-operation statistics
type Tracker struct {
	stats     map[string]*OperationStats
	active    int64
	mu        sync.RWMutex
	started   time.Time
	config    *TrackerConfig
	slowAlert func(m *Marker)
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	SlowThreshold        time.Duration `json:"slowThreshold"`
	BackendSlowThreshold time.Duration `json:"backendSlowThreshold"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		SlowThreshold:        500 * time.Millisecond,
		BackendSlowThreshold: 2 * time.Second,
	}
}

// NewTracker creates a new performance tracker. When logger is non-nil,
// operations slower than their threshold are logged on it.
func NewTracker(config *TrackerConfig, logger *slog.Logger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	t := &Tracker{
		stats:   make(map[string]*OperationStats),
		started: time.Now(),
		config:  config,
	}
	if logger != nil {
		t.slowAlert = func(m *Marker) {
			logger.Warn("Slow operation detected",
				"operation", m.Operation,
				"duration", m.Duration,
				"success", m.Success)
		}
	}
	return t
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, sessionID string) *Marker {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	return &Marker{
		Operation: operation,
		SessionID: sessionID,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true,
		tracker:   t,
	}
}

func (t *Tracker) threshold(operation string) time.Duration {
	if len(operation) >= 8 && operation[:8] == "backend:" {
		return t.config.BackendSlowThreshold
	}
	return t.config.SlowThreshold
}

func (t *Tracker) record(m *Marker) {
	slow := m.Duration > t.threshold(m.Operation)

	t.mu.Lock()
	t.active--
	s, ok := t.stats[m.Operation]
	if !ok {
		s = &OperationStats{Operation: m.Operation}
		t.stats[m.Operation] = s
	}
	s.Count++
	s.TotalTime += m.Duration
	if m.Duration > s.MaxTime {
		s.MaxTime = m.Duration
	}
	if !m.Success {
		s.Failures++
		s.LastError = m.Error
	}
	if slow {
		s.SlowCount++
	}
	s.LastComplete = m.EndTime
	t.mu.Unlock()

	if slow && t.slowAlert != nil {
		t.slowAlert(m)
	}
}

// Snapshot is a point-in-time view of tracked operations
type Snapshot struct {
	Uptime           time.Duration    `json:"uptime"`
	ActiveOperations int64            `json:"activeOperations"`
	Health           HealthStatus     `json:"health"`
	Operations       []OperationStats `json:"operations"`
}

// Snapshot returns per-operation statistics sorted by operation name
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]OperationStats, 0, len(t.stats))
	var total, failures, slow int64
	for _, s := range t.stats {
		ops = append(ops, *s)
		total += s.Count
		failures += s.Failures
		slow += s.SlowCount
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Operation < ops[j].Operation })

	return Snapshot{
		Uptime:           time.Since(t.started),
		ActiveOperations: t.active,
		Health:           healthOf(total, failures, slow),
		Operations:       ops,
	}
}

func healthOf(total, failures, slow int64) HealthStatus {
	if total == 0 {
		return HealthHealthy
	}
	failRatio := float64(failures) / float64(total)
	slowRatio := float64(slow) / float64(total)
	switch {
	case failRatio > 0.25 || slowRatio > 0.5:
		return HealthUnhealthy
	case failRatio > 0.05 || slowRatio > 0.1:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
