package numerator

import (
	"context"
	"sync"
	"time"
)

// MockGenerator is an in-process Generator for unit tests.
// Counters are kept per Key(cfg, at) like the real implementations.
type MockGenerator struct {
	mu       sync.Mutex
	counters map[string]int64

	// Err, when set, is returned by every call.
	Err error
}

// GetNextNumber implements Generator.
func (m *MockGenerator) GetNextNumber(ctx context.Context, cfg Config, at time.Time) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := Key(cfg, at)
	m.counters[key]++
	return Format(cfg, at, m.counters[key]), nil
}

var _ Generator = (*MockGenerator)(nil)
