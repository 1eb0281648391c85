// Package postgres implements store.Store on Postgres via sqlx with OTEL
// instrumentation. Per-key serialization uses SELECT ... FOR UPDATE row
// locks: bid admission and settlement lock the auction row first, then the
// touched account rows, so concurrent mutations of the same auction or
// account queue up behind each other.
package postgres

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/config"
	"github.com/hammermarket/auctiond/internal/store"
)

func init() {
	store.Register("postgres", open)
}

func open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (store.Store, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(db, clk), nil
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.DSN()

	// Register the OTel-instrumented driver wrapping lib/pq.
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("registering otel driver: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Store implements store.Store on a sqlx connection pool.
type Store struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewStore returns a Store over an open connection.
func NewStore(db *sqlx.DB, clk clock.Clock) *Store {
	return &Store{db: db, clk: clk}
}

// queryer is the common surface of *sqlx.DB and *sqlx.Tx the repositories
// run their statements through.
type queryer interface {
	sqlx.ExtContext
}

// InTx runs fn inside one database transaction. Row locks acquired through
// GetForUpdate are held until commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = txx.Rollback() }()

	if err := fn(&txView{q: txx, clk: s.clk}); err != nil {
		return err
	}
	if err := txx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Accounts returns the non-transactional account repository.
func (s *Store) Accounts() store.AccountRepository { return &AccountRepo{q: s.db, clk: s.clk} }

// Auctions returns the non-transactional auction repository.
func (s *Store) Auctions() store.AuctionRepository { return &AuctionRepo{q: s.db, clk: s.clk} }

// Bids returns the non-transactional bid repository.
func (s *Store) Bids() store.BidRepository { return &BidRepo{q: s.db, clk: s.clk} }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// txView scopes the repositories to one transaction.
type txView struct {
	q   *sqlx.Tx
	clk clock.Clock
}

func (t *txView) Accounts() store.AccountRepository { return &AccountRepo{q: t.q, clk: t.clk} }
func (t *txView) Auctions() store.AuctionRepository { return &AuctionRepo{q: t.q, clk: t.clk} }
func (t *txView) Bids() store.BidRepository         { return &BidRepo{q: t.q, clk: t.clk} }
