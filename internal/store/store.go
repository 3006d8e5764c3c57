// Package store is the durable sample store. The engine runs from in-memory
// state; this layer is write-behind persistence for history queries and
// post-hoc analysis, and is allowed to degrade without stopping ingestion.
package store

import (
	"context"
	"time"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// PointWriter persists and queries raw sensor samples.
type PointWriter interface {
	// WritePoint persists one sample.
	WritePoint(ctx context.Context, sample domain.RawSample) error
	// WriteBatch persists samples atomically.
	WriteBatch(ctx context.Context, samples []domain.RawSample) error
	// QueryWindow returns the asset's samples in [from, to], ascending by
	// timestamp, capped at limit (limit <= 0 means no cap).
	QueryWindow(ctx context.Context, assetID string, from, to time.Time, limit int) ([]domain.RawSample, error)
	// DeleteAll removes every stored sample. Used by system purge.
	DeleteAll(ctx context.Context) error
	// Ping reports backend reachability.
	Ping(ctx context.Context) error
}

// DefaultTimeout bounds individual store calls.
const DefaultTimeout = 5 * time.Second
