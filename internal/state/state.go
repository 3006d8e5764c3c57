// Package state holds the in-process per-asset working set: a bounded ring of
// recent samples plus the asset's baseline profile and trained detector. The
// hot path reads from here; durable storage is write-behind.
package state

import (
	"sync"

	"github.com/motorwatch/motorwatch/internal/baseline"
	"github.com/motorwatch/motorwatch/internal/detector"
	"github.com/motorwatch/motorwatch/internal/domain"
)

// DefaultHistoryCapacity bounds each asset's sample ring.
const DefaultHistoryCapacity = 1000

// scoreHistoryCapacity bounds each asset's recent anomaly score ring, used
// for trend estimation.
const scoreHistoryCapacity = 50

// record is one asset's working set. Its own lock keeps asset traffic from
// contending across assets.
type record struct {
	mu       sync.RWMutex
	samples  []domain.RawSample
	ingested int
	scores   []float64
	baseline *baseline.Profile
	detector *detector.Detector
	report   *domain.HealthReport
}

// Store is the registry of per-asset records.
type Store struct {
	mu       sync.Mutex
	capacity int
	assets   map[string]*record
}

// NewStore returns a store whose sample rings hold capacity samples each.
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{capacity: capacity, assets: make(map[string]*record)}
}

func (s *Store) get(assetID string) *record {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.assets[assetID]
	if !ok {
		r = &record{samples: make([]domain.RawSample, 0, s.capacity)}
		s.assets[assetID] = r
	}
	return r
}

// Append adds a sample to the asset's ring, evicting the oldest when full.
func (s *Store) Append(sample domain.RawSample) {
	r := s.get(sample.AssetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingested++
	r.samples = append(r.samples, sample)
	if len(r.samples) > s.capacity {
		r.samples = r.samples[len(r.samples)-s.capacity:]
	}
}

// TotalIngested returns the monotonic count of samples ever appended for the
// asset. Unlike SampleCount it keeps growing after the ring is full.
func (s *Store) TotalIngested(assetID string) int {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ingested
}

// Recent returns up to n most recent samples for the asset, oldest first.
// n <= 0 returns the full ring.
func (s *Store) Recent(assetID string, n int) []domain.RawSample {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.samples) {
		n = len(r.samples)
	}
	out := make([]domain.RawSample, n)
	copy(out, r.samples[len(r.samples)-n:])
	return out
}

// RecordScore appends an anomaly score to the asset's score ring.
func (s *Store) RecordScore(assetID string, score float64) {
	r := s.get(assetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, score)
	if len(r.scores) > scoreHistoryCapacity {
		r.scores = r.scores[len(r.scores)-scoreHistoryCapacity:]
	}
}

// RecentScores returns up to n most recent anomaly scores, oldest first.
// n <= 0 returns the full ring.
func (s *Store) RecentScores(assetID string, n int) []float64 {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.scores) {
		n = len(r.scores)
	}
	out := make([]float64, n)
	copy(out, r.scores[len(r.scores)-n:])
	return out
}

// SampleCount returns the current ring length for the asset.
func (s *Store) SampleCount(assetID string) int {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// SetBaseline installs the asset's baseline profile.
func (s *Store) SetBaseline(assetID string, p *baseline.Profile) {
	r := s.get(assetID)
	r.mu.Lock()
	r.baseline = p
	r.mu.Unlock()
}

// Baseline returns the asset's baseline profile, or nil.
func (s *Store) Baseline(assetID string) *baseline.Profile {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseline
}

// SetDetector installs the asset's trained detector.
func (s *Store) SetDetector(assetID string, d *detector.Detector) {
	r := s.get(assetID)
	r.mu.Lock()
	r.detector = d
	r.mu.Unlock()
}

// Detector returns the asset's trained detector, or nil.
func (s *Store) Detector(assetID string) *detector.Detector {
	r := s.get(assetID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detector
}

// SetReport caches the asset's latest health report.
func (s *Store) SetReport(assetID string, r *domain.HealthReport) {
	rec := s.get(assetID)
	rec.mu.Lock()
	rec.report = r
	rec.mu.Unlock()
}

// LatestReport returns the asset's most recent health report, or nil.
func (s *Store) LatestReport(assetID string) *domain.HealthReport {
	rec := s.get(assetID)
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.report
}

// AssetIDs lists every asset the store has seen.
func (s *Store) AssetIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.assets))
	for id := range s.assets {
		out = append(out, id)
	}
	return out
}

// ClearAll drops every record: samples, scores, baselines, detectors and
// cached reports.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.assets = make(map[string]*record)
	s.mu.Unlock()
}
