package telemetry

import (
	"context"
	"sync"
)

// MemoryRecorder keeps counters in process memory
type MemoryRecorder struct {
	mu       sync.Mutex
	snapshot Snapshot
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		snapshot: Snapshot{Backend: "memory", Categories: make(map[string]int64)},
	}
}

// Record adds a sample to the counters
func (m *MemoryRecorder) Record(_ context.Context, sample Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot.Requests++
	if sample.PIIDetected {
		m.snapshot.PIIRequests++
	}
	m.snapshot.MaskedSpans += int64(sample.MaskedSpans)
	m.snapshot.OriginalChars += int64(sample.OriginalLength)
	m.snapshot.MaskedChars += int64(sample.MaskedLength)
	for category, n := range sample.Categories {
		m.snapshot.Categories[category] += int64(n)
	}
	return nil
}

// Snapshot returns a copy of the counters
func (m *MemoryRecorder) Snapshot(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot
	snap.Categories = make(map[string]int64, len(m.snapshot.Categories))
	for k, v := range m.snapshot.Categories {
		snap.Categories[k] = v
	}
	return &snap, nil
}

// Close is a no-op
func (m *MemoryRecorder) Close() error { return nil }
