package engine

import (
	"context"

	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/store"
)

// GetAuction returns one auction.
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (*store.Auction, error) {
	a, err := e.store.Auctions().GetByID(ctx, auctionID)
	if err != nil {
		return nil, asNotFound(err)
	}
	return a, nil
}

// ListAuctions returns all auctions in creation order.
func (e *Engine) ListAuctions(ctx context.Context) ([]store.Auction, error) {
	return e.store.Auctions().List(ctx)
}

// AuctionBids returns the bid history of one auction.
func (e *Engine) AuctionBids(ctx context.Context, auctionID string) ([]store.Bid, error) {
	if _, err := e.store.Auctions().GetByID(ctx, auctionID); err != nil {
		return nil, asNotFound(err)
	}
	return e.store.Bids().ListByAuction(ctx, auctionID)
}

// UserBids returns every bid a user has placed, oldest first.
func (e *Engine) UserBids(ctx context.Context, userID string) ([]store.Bid, error) {
	return e.store.Bids().ListByBidder(ctx, userID)
}

// AccountOf returns the user's account, creating it with the starting
// grant on first touch.
func (e *Engine) AccountOf(ctx context.Context, userID string) (*store.Account, error) {
	var acct *store.Account
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		a, err := ledger.Ensure(ctx, tx.Accounts(), userID)
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}
