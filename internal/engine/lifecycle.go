package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/notify"
	"github.com/hammermarket/auctiond/internal/store"
)

// CreateAuctionParams describes a new listing.
type CreateAuctionParams struct {
	SellerID    string
	Title       string
	Description string
	Category    string
	SubCategory string
	StartPrice  int64
	MinBidStep  int64
	BuyoutPrice *int64
	StartAt     time.Time
	EndAt       time.Time
}

// CreateAuction records a new listing. The initial status is computed from
// the start time: a listing whose window has already opened goes straight
// to OPEN without waiting for the next promotion sweep.
func (e *Engine) CreateAuction(ctx context.Context, p CreateAuctionParams) (*store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.CreateAuction",
		trace.WithAttributes(attribute.String("seller.id", p.SellerID)),
	)
	defer span.End()

	if p.Title == "" {
		return nil, ErrInvalidTitle
	}
	if !quantized(p.StartPrice) || !quantized(p.MinBidStep) {
		return nil, fmt.Errorf("start price %d, step %d: %w", p.StartPrice, p.MinBidStep, ErrInvalidAmount)
	}
	if p.BuyoutPrice != nil && (!quantized(*p.BuyoutPrice) || *p.BuyoutPrice <= p.StartPrice) {
		return nil, fmt.Errorf("buyout price %d: %w", *p.BuyoutPrice, ErrInvalidAmount)
	}
	now := e.clock.Now().UTC()
	if !p.StartAt.Before(p.EndAt) || !p.EndAt.After(now) {
		return nil, ErrInvalidSchedule
	}

	status := store.StatusScheduled
	if !p.StartAt.After(now) {
		status = store.StatusOpen
	}

	auction := &store.Auction{
		ID:          uuid.NewString(),
		SellerID:    p.SellerID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		SubCategory: p.SubCategory,
		StartPrice:  p.StartPrice,
		MinBidStep:  p.MinBidStep,
		BuyoutPrice: p.BuyoutPrice,
		Status:      status,
		StartAt:     p.StartAt.UTC(),
		EndAt:       p.EndAt.UTC(),
	}

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), p.SellerID); err != nil {
			return err
		}
		return tx.Auctions().Create(ctx, auction)
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", auction.ID),
		slog.String("seller_id", p.SellerID),
		slog.String("status", string(status)),
	)
	return auction, nil
}

// CancelAuction cancels a listing on behalf of its seller. Only allowed
// while no bids exist; an auction that has attracted money resolves through
// the normal close path instead.
func (e *Engine) CancelAuction(ctx context.Context, auctionID, callerID string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.CancelAuction",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	err := e.store.InTx(ctx, func(tx store.Tx) error {
		auction, err := tx.Auctions().GetForUpdate(ctx, auctionID)
		if err != nil {
			return asNotFound(err)
		}
		if auction.SellerID != callerID {
			return ErrForbidden
		}
		if auction.Status != store.StatusScheduled && auction.Status != store.StatusOpen {
			return fmt.Errorf("auction is %s: %w", auction.Status, ErrInvalidAuctionState)
		}
		n, err := tx.Bids().CountByAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAuctionHasBids
		}
		return tx.Auctions().Cancel(ctx, auctionID)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "auction canceled", slog.String("auction_id", auctionID))
	e.publish(ctx, auctionID, notify.AuctionCanceled, struct{}{})
	return nil
}

// OpenScheduled promotes a SCHEDULED auction whose start time has passed.
// Returns false with no error when there is nothing to do, which makes the
// promotion sweep idempotent.
func (e *Engine) OpenScheduled(ctx context.Context, auctionID string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.OpenScheduled",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	opened := false
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		auction, err := tx.Auctions().GetForUpdate(ctx, auctionID)
		if err != nil {
			return asNotFound(err)
		}
		if auction.Status != store.StatusScheduled || auction.StartAt.After(e.clock.Now()) {
			return nil
		}
		if err := tx.Auctions().MarkOpen(ctx, auctionID); err != nil {
			return err
		}
		opened = true
		return nil
	})
	if err != nil || !opened {
		return false, err
	}

	e.logger.InfoContext(ctx, "auction opened", slog.String("auction_id", auctionID))
	e.publish(ctx, auctionID, notify.AuctionOpened, struct{}{})
	return true, nil
}

// SettleExpired closes an OPEN auction whose end time has passed and
// settles funds: the winner's escrow transfers to the seller. No other
// bidder holds escrow on the auction at this point, because admission
// released each superseded holder when it was outbid; stale escrow would
// surface as ledger.ErrInvalidState rather than silently corrupt balances.
// Returns false with no error when the auction is no longer eligible,
// which makes the expiry sweep idempotent and tolerant of racing bids.
func (e *Engine) SettleExpired(ctx context.Context, auctionID string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SettleExpired",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	var (
		settled      bool
		winningBidID *string
		finalPrice   *int64
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		auction, err := tx.Auctions().GetForUpdate(ctx, auctionID)
		if err != nil {
			return asNotFound(err)
		}
		if auction.Status != store.StatusOpen || auction.EndAt.After(e.clock.Now()) {
			return nil
		}

		highest, err := tx.Bids().Highest(ctx, auctionID)
		if err != nil {
			return err
		}
		if highest != nil {
			if err := ledger.Transfer(ctx, tx.Accounts(), highest.BidderID, highest.Amount, auction.SellerID); err != nil {
				return err
			}
			winningBidID = &highest.ID
			finalPrice = &highest.Amount
		}
		if err := tx.Auctions().Close(ctx, auctionID, winningBidID); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil || !settled {
		return false, err
	}

	e.logger.InfoContext(ctx, "auction settled",
		slog.String("auction_id", auctionID),
		slog.Any("winning_bid_id", winningBidID),
	)
	e.publish(ctx, auctionID, notify.AuctionClosed, notify.AuctionClosedData{
		WinningBidID: winningBidID,
		FinalPrice:   finalPrice,
	})
	return true, nil
}
