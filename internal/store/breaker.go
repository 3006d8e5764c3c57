package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Degrading wraps a PointWriter with a circuit breaker. When the backend
// fails repeatedly the breaker opens, writes are counted and dropped, and
// ingestion keeps running on in-memory state alone.
type Degrading struct {
	inner   PointWriter
	breaker *cb.CircuitBreaker
}

// NewDegrading wraps inner with a breaker tripping after 3 consecutive
// failures, or a >5% failure rate over at least 20 calls.
func NewDegrading(inner PointWriter, name string) *Degrading {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().Str("breaker", name).
			Str("from", from.String()).Str("to", to.String()).
			Msg("store breaker state change")
	}
	return &Degrading{inner: inner, breaker: cb.NewCircuitBreaker(st)}
}

func (d *Degrading) execute(op string, fn func() error) error {
	_, err := d.breaker.Execute(func() (any, error) { return nil, fn() })
	if err == cb.ErrOpenState || err == cb.ErrTooManyRequests {
		return domain.Wrap(domain.KindStoreUnavailable, op, err, "store degraded")
	}
	return err
}

func (d *Degrading) WritePoint(ctx context.Context, sample domain.RawSample) error {
	return d.execute("store.breaker.write_point", func() error { return d.inner.WritePoint(ctx, sample) })
}

func (d *Degrading) WriteBatch(ctx context.Context, samples []domain.RawSample) error {
	return d.execute("store.breaker.write_batch", func() error { return d.inner.WriteBatch(ctx, samples) })
}

func (d *Degrading) QueryWindow(ctx context.Context, assetID string, from, to time.Time, limit int) ([]domain.RawSample, error) {
	var out []domain.RawSample
	err := d.execute("store.breaker.query_window", func() error {
		var e error
		out, e = d.inner.QueryWindow(ctx, assetID, from, to, limit)
		return e
	})
	return out, err
}

func (d *Degrading) DeleteAll(ctx context.Context) error {
	return d.execute("store.breaker.delete_all", func() error { return d.inner.DeleteAll(ctx) })
}

func (d *Degrading) Ping(ctx context.Context) error {
	return d.execute("store.breaker.ping", func() error { return d.inner.Ping(ctx) })
}

// State exposes the breaker state for the health endpoint.
func (d *Degrading) State() cb.State { return d.breaker.State() }
