package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Memory is the in-process PointWriter used when no database is configured
// and in tests. Same contract as Postgres, no durability.
type Memory struct {
	mu      sync.RWMutex
	samples []domain.RawSample
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) WritePoint(_ context.Context, sample domain.RawSample) error {
	m.mu.Lock()
	m.samples = append(m.samples, sample)
	m.mu.Unlock()
	return nil
}

func (m *Memory) WriteBatch(_ context.Context, samples []domain.RawSample) error {
	m.mu.Lock()
	m.samples = append(m.samples, samples...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) QueryWindow(_ context.Context, assetID string, from, to time.Time, limit int) ([]domain.RawSample, error) {
	m.mu.RLock()
	var out []domain.RawSample
	for _, s := range m.samples {
		if s.AssetID != assetID || s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteAll(context.Context) error {
	m.mu.Lock()
	m.samples = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the stored sample count.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.samples)
}
