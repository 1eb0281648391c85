package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/store"
)

// BidRepo implements store.BidRepository with sqlx. Bids are append-only;
// there is deliberately no update or delete statement here.
type BidRepo struct {
	q   queryer
	clk clock.Clock
}

func (r *BidRepo) Create(ctx context.Context, b *store.Bid) error {
	b.CreatedAt = r.clk.Now().UTC()
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating bid: %w", err)
	}
	return nil
}

func (r *BidRepo) Highest(ctx context.Context, auctionID string) (*store.Bid, error) {
	var b store.Bid
	err := sqlx.GetContext(ctx, r.q, &b,
		`SELECT * FROM bids WHERE auction_id = $1
		 ORDER BY amount DESC, created_at ASC LIMIT 1`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting highest bid: %w", err)
	}
	return &b, nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := sqlx.SelectContext(ctx, r.q, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY created_at ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

func (r *BidRepo) ListByBidder(ctx context.Context, bidderID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := sqlx.SelectContext(ctx, r.q, &bids,
		`SELECT * FROM bids WHERE bidder_id = $1 ORDER BY created_at ASC`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("listing bids by bidder: %w", err)
	}
	return bids, nil
}

func (r *BidRepo) CountByAuction(ctx context.Context, auctionID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n,
		`SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID)
	if err != nil {
		return 0, fmt.Errorf("counting bids: %w", err)
	}
	return n, nil
}
