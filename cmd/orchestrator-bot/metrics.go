package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
)

// MetricsCollector tracks metrics for the health endpoint.
type MetricsCollector struct {
	lastRun          time.Time
	prsSeen          map[int]bool
	decisions        map[guardian.Kind]int
	issuesDispatched map[int]bool
	mu               sync.RWMutex
	totalRuns        atomic.Int64
	events           atomic.Int64
	failures         atomic.Int64
	pollingMu        sync.Mutex
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		prsSeen:          make(map[int]bool),
		decisions:        make(map[guardian.Kind]int),
		issuesDispatched: make(map[int]bool),
	}
}

// RecordOutcome records one guardian outcome.
func (m *MetricsCollector) RecordOutcome(out guardian.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prsSeen[out.PR] = true
	if out.Decision != nil {
		m.decisions[out.Decision.Kind()]++
	}
	if out.Err != nil {
		m.failures.Add(1)
	}
}

// RecordAssignment records one dispatch result. Only applied assignments count as dispatched.
func (m *MetricsCollector) RecordAssignment(r dispatcher.Result) {
	if r.Err != nil {
		m.failures.Add(1)
		return
	}
	if !r.Applied {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issuesDispatched[r.Issue] = true
}

// RecordEvent records an event accepted from the event stream.
func (m *MetricsCollector) RecordEvent() {
	m.events.Add(1)
}

// RecordRunComplete records that a run has completed.
func (m *MetricsCollector) RecordRunComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = time.Now()
	m.totalRuns.Add(1)
}

// Stats represents collected metrics.
type Stats struct {
	LastRun          time.Time
	TotalRuns        int64
	Events           int64
	Failures         int64
	PRsSeen          int
	AutoMerge        int
	Escalated        int
	Blocked          int
	IssuesDispatched int
}

// Stats returns the current statistics.
func (m *MetricsCollector) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		LastRun:          m.lastRun,
		TotalRuns:        m.totalRuns.Load(),
		Events:           m.events.Load(),
		Failures:         m.failures.Load(),
		PRsSeen:          len(m.prsSeen),
		AutoMerge:        m.decisions[guardian.KindAutoMerge],
		Escalated:        m.decisions[guardian.KindEscalate],
		Blocked:          m.decisions[guardian.KindBlocked],
		IssuesDispatched: len(m.issuesDispatched),
	}
}
