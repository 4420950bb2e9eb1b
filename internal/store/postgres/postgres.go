// Package postgres is the PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ynab-itemized/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// sweepLockKey identifies the advisory lock taken by LockSweep.
const sweepLockKey int64 = 0x796e6162 // "ynab"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store talks to PostgreSQL through a pgx pool. Inside WithinTx it is bound
// to the transaction instead.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
	now  func() time.Time
}

// New connects to databaseURL and pings the server.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, normalizeURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parsing database URL: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: connecting: %w", err)
	}
	return NewWithPool(pool), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool, now: func() time.Time { return time.Now().UTC() }}
}

// normalizeURL accepts postgresql:// URLs and defaults sslmode to disable.
func normalizeURL(u string) string {
	if strings.HasPrefix(u, "postgresql://") {
		u = "postgres://" + strings.TrimPrefix(u, "postgresql://")
	}
	if strings.HasPrefix(u, "postgres://") && !strings.Contains(u, "sslmode=") {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "sslmode=disable"
	}
	return u
}

func (s *Store) Close() {
	if !s.inTx {
		s.pool.Close()
	}
}

// WithinTx implements store.Store. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Store{pool: s.pool, q: tx, inTx: true, now: s.now})
	})
}

// LockSweep implements store.Store with a transaction-scoped advisory lock.
func (s *Store) LockSweep(ctx context.Context) error {
	if !s.inTx {
		return errors.New("LockSweep: must be called inside WithinTx")
	}
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, sweepLockKey); err != nil {
		return fmt.Errorf("LockSweep: %w", err)
	}
	return nil
}

// numArg encodes an optional decimal for a $n::numeric parameter.
func numArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNum(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// dateArg encodes a civil date for a $n::date parameter; zero is NULL.
func dateArg(d civil.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func parseDate(s *string) (civil.Date, error) {
	if s == nil || *s == "" {
		return civil.Date{}, nil
	}
	return civil.ParseDate(*s)
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

var _ store.Store = (*Store)(nil)
