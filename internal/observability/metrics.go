package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	externalCalls map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		externalCalls: make(map[string]int64),
	}
}

// RecordRequest increments counters for inbound HTTP requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordExternalCall counts one outbound platform call per integration and
// outcome.
func (m *Metrics) RecordExternalCall(integrationID, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	key := integrationID + "|" + outcome
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalCalls[key]++
}

// ExternalCallCount returns the recorded count for an integration/outcome
// pair.
func (m *Metrics) ExternalCallCount(integrationID, outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.externalCalls[integrationID+"|"+outcome]
}
