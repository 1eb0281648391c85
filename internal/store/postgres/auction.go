package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	q   queryer
	clk clock.Clock
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	now := r.clk.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO auctions (id, seller_id, title, description, category, sub_category,
		                       start_price, min_bid_step, current_price, buyout_price,
		                       status, winning_bid_id, start_at, end_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.SellerID, a.Title, a.Description, a.Category, a.SubCategory,
		a.StartPrice, a.MinBidStep, a.CurrentPrice, a.BuyoutPrice,
		a.Status, a.WinningBidID, a.StartAt, a.EndAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := sqlx.GetContext(ctx, r.q, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) GetForUpdate(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := sqlx.GetContext(ctx, r.q, &a, `SELECT * FROM auctions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("locking auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) SetCurrentPrice(ctx context.Context, id string, price int64) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE auctions SET current_price = $1, updated_at = $2 WHERE id = $3`,
		price, r.clk.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating current price: %w", err)
	}
	return r.requireRow(result, id)
}

func (r *AuctionRepo) MarkOpen(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE auctions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		store.StatusOpen, r.clk.Now().UTC(), id, store.StatusScheduled,
	)
	if err != nil {
		return fmt.Errorf("opening auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("auction %s not found or not scheduled", id)
	}
	return nil
}

func (r *AuctionRepo) Close(ctx context.Context, id string, winningBidID *string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE auctions SET status = $1, winning_bid_id = $2, updated_at = $3
		 WHERE id = $4 AND status = $5`,
		store.StatusClosed, winningBidID, r.clk.Now().UTC(), id, store.StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("closing auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("auction %s not found or not open", id)
	}
	return nil
}

func (r *AuctionRepo) Cancel(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE auctions SET status = $1, updated_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		store.StatusCanceled, r.clk.Now().UTC(), id, store.StatusScheduled, store.StatusOpen,
	)
	if err != nil {
		return fmt.Errorf("canceling auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("auction %s not found or already terminal", id)
	}
	return nil
}

func (r *AuctionRepo) List(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := sqlx.SelectContext(ctx, r.q, &auctions,
		`SELECT * FROM auctions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListScheduledBefore(ctx context.Context, t time.Time) ([]store.Auction, error) {
	var auctions []store.Auction
	err := sqlx.SelectContext(ctx, r.q, &auctions,
		`SELECT * FROM auctions WHERE status = $1 AND start_at <= $2 ORDER BY start_at ASC`,
		store.StatusScheduled, t,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scheduled auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListExpiredBefore(ctx context.Context, t time.Time) ([]store.Auction, error) {
	var auctions []store.Auction
	err := sqlx.SelectContext(ctx, r.q, &auctions,
		`SELECT * FROM auctions WHERE status = $1 AND end_at <= $2 ORDER BY end_at ASC`,
		store.StatusOpen, t,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) requireRow(result sql.Result, id string) error {
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	return nil
}
