package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/motorwatch/motorwatch/internal/domain"
)

// Schema creates the sensor_samples table. Applied at startup when the
// Postgres store is enabled.
const Schema = `
CREATE TABLE IF NOT EXISTS sensor_samples (
	id           BIGSERIAL PRIMARY KEY,
	asset_id     TEXT NOT NULL,
	asset_type   TEXT NOT NULL DEFAULT '',
	ts           TIMESTAMPTZ NOT NULL,
	voltage_v    DOUBLE PRECISION NOT NULL,
	current_a    DOUBLE PRECISION NOT NULL,
	power_factor DOUBLE PRECISION NOT NULL,
	vibration_g  DOUBLE PRECISION NOT NULL,
	power_kw     DOUBLE PRECISION NOT NULL,
	is_faulty    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_sensor_samples_asset_ts ON sensor_samples (asset_id, ts);
`

// Postgres is the PointWriter backed by PostgreSQL via sqlx.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgres wraps an open connection. timeout <= 0 uses DefaultTimeout.
func NewPostgres(db *sqlx.DB, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Postgres{db: db, timeout: timeout}
}

// OpenPostgres connects with the given DSN and applies the schema.
func OpenPostgres(ctx context.Context, dsn string, timeout time.Duration) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, domain.Wrap(domain.KindStoreUnavailable, "store.postgres.open", err, "connect")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, domain.Wrap(domain.KindStoreUnavailable, "store.postgres.open", err, "apply schema")
	}
	return NewPostgres(db, timeout), nil
}

const insertSample = `
	INSERT INTO sensor_samples (asset_id, asset_type, ts, voltage_v, current_a, power_factor, vibration_g, power_kw, is_faulty)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (p *Postgres) WritePoint(ctx context.Context, sample domain.RawSample) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, insertSample,
		sample.AssetID, sample.AssetType, sample.Timestamp,
		sample.VoltageV, sample.CurrentA, sample.PowerFactor,
		sample.VibrationG, sample.PowerKW, sample.IsFaulty)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.write_point", err, "insert sample")
	}
	return nil
}

func (p *Postgres) WriteBatch(ctx context.Context, samples []domain.RawSample) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout*time.Duration(len(samples)/500+1))
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.write_batch", err, "begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSample)
	if err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.write_batch", err, "prepare insert")
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx,
			s.AssetID, s.AssetType, s.Timestamp,
			s.VoltageV, s.CurrentA, s.PowerFactor,
			s.VibrationG, s.PowerKW, s.IsFaulty); err != nil {
			return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.write_batch", err, "insert sample in batch")
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.write_batch", err, "commit")
	}
	return nil
}

func (p *Postgres) QueryWindow(ctx context.Context, assetID string, from, to time.Time, limit int) ([]domain.RawSample, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := `
		SELECT asset_id, asset_type, ts, voltage_v, current_a, power_factor, vibration_g, power_kw, is_faulty
		FROM sensor_samples
		WHERE asset_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`
	args := []any{assetID, from, to}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	var out []domain.RawSample
	if err := p.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, domain.Wrap(domain.KindStoreUnavailable, "store.postgres.query_window", err, "select samples")
	}
	return out, nil
}

func (p *Postgres) DeleteAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.db.ExecContext(ctx, `TRUNCATE sensor_samples`); err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.delete_all", err, "truncate")
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return domain.Wrap(domain.KindStoreUnavailable, "store.postgres.ping", err, "ping")
	}
	return nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() error { return p.db.Close() }
