package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/md-rashed-zaman/zapagenda/libs/config"
)

type Pool struct {
	*pgxpool.Pool
}

// Querier is the subset of pgxpool.Pool used by repositories. pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PoolSettings sizes the connection pool. Zero fields keep the defaults.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
}

func DefaultPoolSettings() PoolSettings {
	return PoolSettings{
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 30 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

// PoolSettingsFromEnv reads DB_MAX_CONNS, DB_MIN_CONNS, DB_MAX_CONN_LIFETIME
// and DB_MAX_CONN_IDLE_TIME over the defaults.
func PoolSettingsFromEnv(applicationName string) (PoolSettings, error) {
	s := DefaultPoolSettings()
	s.ApplicationName = applicationName

	maxConns, err1 := config.Int("DB_MAX_CONNS", int(s.MaxConns))
	minConns, err2 := config.Int("DB_MIN_CONNS", int(s.MinConns))
	lifetime, err3 := config.Duration("DB_MAX_CONN_LIFETIME", s.MaxConnLifetime)
	idle, err4 := config.Duration("DB_MAX_CONN_IDLE_TIME", s.MaxConnIdleTime)
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		return s, err
	}
	if maxConns < 1 || minConns < 0 || minConns > maxConns {
		return s, fmt.Errorf("db pool: need 0 <= DB_MIN_CONNS <= DB_MAX_CONNS and DB_MAX_CONNS >= 1 (got %d, %d)", minConns, maxConns)
	}
	s.MaxConns, s.MinConns = int32(maxConns), int32(minConns)
	s.MaxConnLifetime, s.MaxConnIdleTime = lifetime, idle
	return s, nil
}

// Open connects and pings. Settings default to DefaultPoolSettings.
func Open(ctx context.Context, databaseURL string, settings ...PoolSettings) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	s := DefaultPoolSettings()
	if len(settings) > 0 {
		s = settings[0]
	}
	applyPoolSettings(cfg, s)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Pool{Pool: pool}, nil
}

func applyPoolSettings(cfg *pgxpool.Config, s PoolSettings) {
	if s.MaxConns > 0 {
		cfg.MaxConns = s.MaxConns
	}
	if s.MinConns > 0 {
		cfg.MinConns = s.MinConns
	}
	if s.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = s.MaxConnLifetime
	}
	if s.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = s.MaxConnIdleTime
	}
	if s.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = s.ApplicationName
	}
}

func (p *Pool) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

func ReadyCheck(pool *Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil || pool.Pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
}

// InTx runs fn inside a transaction and commits when fn returns nil.
func InTx(ctx context.Context, q Querier, fn func(tx pgx.Tx) error) error {
	tx, err := q.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
