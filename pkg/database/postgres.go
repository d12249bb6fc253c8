package database

import (
	"context"
	"fmt"
	"time"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cfg "github.com/bluecarbon/mrv-registry/backend/config"
)

// Postgres holds the connection pool plus the transactor used by
// repositories to join an ambient transaction.
type Postgres struct {
	Pool       *pgxpool.Pool
	Transactor *tx.Transactor
	DBGetter   tx.DBGetter

	maxPoolSize       int32
	connTimeout       time.Duration
	healthCheckPeriod time.Duration
	isolation         pgx.TxIsoLevel
}

// Option configures the Postgres wrapper.
type Option func(*Postgres)

func MaxPoolSize(size int32) Option {
	return func(p *Postgres) { p.maxPoolSize = size }
}

func ConnTimeout(seconds int) Option {
	return func(p *Postgres) { p.connTimeout = time.Duration(seconds) * time.Second }
}

func HealthCheckPeriod(seconds int) Option {
	return func(p *Postgres) { p.healthCheckPeriod = time.Duration(seconds) * time.Second }
}

func Isolation(level pgx.TxIsoLevel) Option {
	return func(p *Postgres) { p.isolation = level }
}

// New creates a pgx pool from the configuration and wraps it in a
// transactor.
func New(config *cfg.Config, opts ...Option) (*Postgres, error) {
	p := &Postgres{
		maxPoolSize:       10,
		connTimeout:       5 * time.Second,
		healthCheckPeriod: time.Minute,
		isolation:         pgx.ReadCommitted,
	}

	for _, opt := range opts {
		opt(p)
	}

	poolConfig, err := pgxpool.ParseConfig(config.DB.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	poolConfig.MaxConns = p.maxPoolSize
	poolConfig.ConnConfig.ConnectTimeout = p.connTimeout
	poolConfig.HealthCheckPeriod = p.healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err = pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p.Pool = pool
	p.Transactor, p.DBGetter = tx.NewTransactorFromPool(pool)

	return p, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.Pool != nil {
		p.Pool.Close()
	}
}
