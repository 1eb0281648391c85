package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/notify"
	"github.com/hammermarket/auctiond/internal/store"
)

// PlaceBid validates and commits a new bid. On success the superseded
// bidder's escrow (if any) has been released, the new bidder's funds are
// escrowed, the bid is recorded and the auction price advanced, all in one
// transaction. The auction row lock serializes competing bids: a second
// bidder admitted concurrently waits and then sees the updated floor.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.Int64("bid.amount", amount),
		),
	)
	defer span.End()

	if !quantized(amount) {
		return nil, fmt.Errorf("bid of %d: %w", amount, ErrInvalidAmount)
	}

	var placed *store.Bid
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		auction, err := tx.Auctions().GetForUpdate(ctx, auctionID)
		if err != nil {
			return asNotFound(err)
		}
		if auction.Status != store.StatusOpen {
			return fmt.Errorf("auction is %s: %w", auction.Status, ErrInvalidAuctionState)
		}
		if auction.SellerID == bidderID {
			return ErrForbidden
		}
		if floor := auction.Floor(); amount < floor {
			return fmt.Errorf("floor is %d: %w", floor, ErrBidTooLow)
		}

		previous, err := tx.Bids().Highest(ctx, auctionID)
		if err != nil {
			return err
		}
		if previous != nil && previous.BidderID == bidderID {
			return ErrDuplicateBidder
		}

		available, err := ledger.Available(ctx, tx.Accounts(), bidderID)
		if err != nil {
			return err
		}
		if available < amount {
			return fmt.Errorf("available %d, bid %d: %w", available, amount, ledger.ErrInsufficientFunds)
		}

		// Release-then-escrow is safe here: the transaction commits or
		// rolls back as a whole, so no reader ever observes two holders
		// or a released bidder alongside a stale price.
		if previous != nil {
			if err := ledger.Release(ctx, tx.Accounts(), previous.BidderID, previous.Amount); err != nil {
				return err
			}
		}
		if err := ledger.Escrow(ctx, tx.Accounts(), bidderID, amount); err != nil {
			return err
		}

		bid := &store.Bid{
			ID:        uuid.NewString(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
		}
		if err := tx.Bids().Create(ctx, bid); err != nil {
			return err
		}
		if err := tx.Auctions().SetCurrentPrice(ctx, auctionID, amount); err != nil {
			return err
		}
		placed = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.Int64("amount", amount),
	)
	e.publish(ctx, auctionID, notify.BidPlaced, notify.BidPlacedData{
		BidderID:     bidderID,
		Amount:       amount,
		CurrentPrice: amount,
	})

	return placed, nil
}

// Buyout purchases the auction at its buyout price and closes it. Unlike a
// bid, buyout settles immediately: funds move straight from the buyer's
// spendable balance to the seller's, with no escrow step, because the
// auction is no longer contestable afterwards.
func (e *Engine) Buyout(ctx context.Context, auctionID, buyerID string) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Buyout",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("buyer.id", buyerID),
		),
	)
	defer span.End()

	var (
		placed *store.Bid
		price  int64
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		auction, err := tx.Auctions().GetForUpdate(ctx, auctionID)
		if err != nil {
			return asNotFound(err)
		}
		if auction.Status != store.StatusOpen {
			return fmt.Errorf("auction is %s: %w", auction.Status, ErrInvalidAuctionState)
		}
		if auction.SellerID == buyerID {
			return ErrForbidden
		}
		if auction.BuyoutPrice == nil {
			return ErrNoBuyoutPrice
		}
		price = *auction.BuyoutPrice

		available, err := ledger.Available(ctx, tx.Accounts(), buyerID)
		if err != nil {
			return err
		}
		if available < price {
			return fmt.Errorf("available %d, buyout %d: %w", available, price, ledger.ErrInsufficientFunds)
		}

		// Whoever holds the current highest bid gets their escrow back,
		// including the buyer themselves.
		previous, err := tx.Bids().Highest(ctx, auctionID)
		if err != nil {
			return err
		}
		if previous != nil {
			if err := ledger.Release(ctx, tx.Accounts(), previous.BidderID, previous.Amount); err != nil {
				return err
			}
		}

		if err := ledger.Debit(ctx, tx.Accounts(), buyerID, price); err != nil {
			return err
		}
		if err := ledger.Credit(ctx, tx.Accounts(), auction.SellerID, price); err != nil {
			return err
		}

		bid := &store.Bid{
			ID:        uuid.NewString(),
			AuctionID: auctionID,
			BidderID:  buyerID,
			Amount:    price,
		}
		if err := tx.Bids().Create(ctx, bid); err != nil {
			return err
		}
		if err := tx.Auctions().Close(ctx, auctionID, &bid.ID); err != nil {
			return err
		}
		placed = bid
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "auction bought out",
		slog.String("auction_id", auctionID),
		slog.String("buyer_id", buyerID),
		slog.Int64("price", price),
	)
	e.publish(ctx, auctionID, notify.BidPlaced, notify.BidPlacedData{
		BidderID:     buyerID,
		Amount:       price,
		CurrentPrice: price,
	})
	e.publish(ctx, auctionID, notify.AuctionClosed, notify.AuctionClosedData{
		WinningBidID: &placed.ID,
		FinalPrice:   &price,
	})

	return placed, nil
}
