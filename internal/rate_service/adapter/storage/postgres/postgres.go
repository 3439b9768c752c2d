package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/langowen/metalrates/deploy/config"
	"github.com/langowen/metalrates/internal/entities"
	"github.com/pkg/errors"
	"log/slog"
)

type Storage struct {
	db *pgxpool.Pool
}

func NewStorage(pool *pgxpool.Pool) *Storage {
	return &Storage{
		db: pool,
	}
}

func New(ctx context.Context, cfg *config.Config) (*Storage, error) {
	const op = "storage.postgres.New"

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		cfg.Storage.Host,
		cfg.Storage.Port,
		cfg.Storage.User,
		cfg.Storage.Password,
		cfg.Storage.DBName,
		cfg.Storage.SSLMode,
		cfg.Storage.Schema,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 10 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op)
	}

	storage := NewStorage(pool)

	if err = storage.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, op)
	}

	slog.Info("PostgresSQL storage initialized successfully")
	return storage, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	const op = "storage.postgres.ensureSchema"

	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS metal_rates (
            id              TEXT PRIMARY KEY,
            locality        TEXT NOT NULL,
            gold24k         DOUBLE PRECISION NOT NULL,
            gold22k         DOUBLE PRECISION NOT NULL,
            gold18k         DOUBLE PRECISION NOT NULL,
            silver_per_gram DOUBLE PRECISION NOT NULL,
            silver_per_kg   DOUBLE PRECISION NOT NULL,
            gold_10gm       DOUBLE PRECISION NOT NULL,
            silver_10gm     DOUBLE PRECISION NOT NULL,
            rate_timestamp  TIMESTAMPTZ NOT NULL,
            source          TEXT NOT NULL,
            is_active       BOOLEAN NOT NULL DEFAULT TRUE,
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
        );
        CREATE INDEX IF NOT EXISTS metal_rates_locality_active_idx
            ON metal_rates (locality, updated_at DESC) WHERE is_active
    `)
	if err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}

func (s *Storage) Close() {
	s.db.Close()
}

// GetLatest returns the most recently updated active snapshot for the
// locality, or entities.ErrNotFound when no row exists.
func (s *Storage) GetLatest(ctx context.Context, locality string) (*entities.RateSnapshot, error) {
	const op = "storage.postgres.GetLatest"

	query := `
        SELECT locality, gold24k, gold22k, gold18k,
               silver_per_gram, silver_per_kg, gold_10gm, silver_10gm,
               rate_timestamp, source
        FROM metal_rates
        WHERE locality = $1 AND is_active
        ORDER BY updated_at DESC
        LIMIT 1
    `

	var snapshot entities.RateSnapshot
	err := s.db.QueryRow(ctx, query, locality).Scan(
		&snapshot.Locality,
		&snapshot.Gold24K,
		&snapshot.Gold22K,
		&snapshot.Gold18K,
		&snapshot.SilverPerGram,
		&snapshot.SilverPerKg,
		&snapshot.Gold10Gm,
		&snapshot.Silver10Gm,
		&snapshot.Timestamp,
		&snapshot.Source,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entities.ErrNotFound
		}
		return nil, errors.Wrap(err, op)
	}

	return &snapshot, nil
}

// SaveLatest upserts the active row for the snapshot's locality: each
// locality keeps exactly one current row, updated in place once it exists.
func (s *Storage) SaveLatest(ctx context.Context, snapshot *entities.RateSnapshot) error {
	const op = "storage.postgres.SaveLatest"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
        UPDATE metal_rates
        SET gold24k = $2, gold22k = $3, gold18k = $4,
            silver_per_gram = $5, silver_per_kg = $6,
            gold_10gm = $7, silver_10gm = $8,
            rate_timestamp = $9, source = $10, updated_at = now()
        WHERE locality = $1 AND is_active
    `,
		snapshot.Locality,
		snapshot.Gold24K,
		snapshot.Gold22K,
		snapshot.Gold18K,
		snapshot.SilverPerGram,
		snapshot.SilverPerKg,
		snapshot.Gold10Gm,
		snapshot.Silver10Gm,
		snapshot.Timestamp,
		snapshot.Source,
	)
	if err != nil {
		return errors.Wrap(err, op)
	}

	if tag.RowsAffected() == 0 {
		id := fmt.Sprintf("%s-%d", snapshot.Locality, time.Now().UnixMilli())

		_, err = tx.Exec(ctx, `
            INSERT INTO metal_rates
                (id, locality, gold24k, gold22k, gold18k,
                 silver_per_gram, silver_per_kg, gold_10gm, silver_10gm,
                 rate_timestamp, source, is_active, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, now())
        `,
			id,
			snapshot.Locality,
			snapshot.Gold24K,
			snapshot.Gold22K,
			snapshot.Gold18K,
			snapshot.SilverPerGram,
			snapshot.SilverPerKg,
			snapshot.Gold10Gm,
			snapshot.Silver10Gm,
			snapshot.Timestamp,
			snapshot.Source,
		)
		if err != nil {
			return errors.Wrap(err, op)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, op)
	}

	return nil
}
