// Package engine implements the auction settlement core: bid admission,
// buyout, lifecycle transitions and fund settlement. Every mutating
// operation is one store transaction over locked auction and account rows;
// events are handed to the notifier only after the transaction commits and
// a failed publish never affects the committed state.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/notify"
	"github.com/hammermarket/auctiond/internal/store"
)

// Bid amount domain constants, in minor currency units.
const (
	// BidStep is the quantization step: every price and bid must be a
	// positive multiple of it.
	BidStep int64 = 100
	// BidCeiling is the platform-wide maximum bid amount.
	BidCeiling int64 = 1_000_000_000
)

// Errors returned by engine operations. All of these are user-facing
// rejections; a ledger.ErrInvalidState escaping an operation indicates a
// bookkeeping defect instead and is logged at error severity.
var (
	ErrNotFound            = errors.New("auction not found")
	ErrForbidden           = errors.New("seller cannot bid on own auction")
	ErrInvalidAuctionState = errors.New("auction is not in the required state")
	ErrBidTooLow           = errors.New("bid is below the floor price")
	ErrInvalidAmount       = errors.New("amount must be a positive multiple of the bid step and within the ceiling")
	ErrInvalidTitle        = errors.New("title is required")
	ErrDuplicateBidder     = errors.New("bidder already holds the highest bid")
	ErrNoBuyoutPrice       = errors.New("auction has no buyout price")
	ErrAuctionHasBids      = errors.New("auction with bids cannot be canceled")
	ErrInvalidSchedule     = errors.New("auction start must precede its end")
)

// Engine coordinates the stores, the ledger and the notifier.
type Engine struct {
	store    store.Store
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine.
func New(st store.Store, n notify.Notifier, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider) *Engine {
	return &Engine{
		store:    st,
		notifier: n,
		clock:    clk,
		logger:   logger,
		tracer:   tp.Tracer("github.com/hammermarket/auctiond/internal/engine"),
	}
}

// publish builds an event and hands it to the notifier. Delivery is
// fire-and-forget: failures are logged and swallowed, never propagated to
// the caller whose settlement already committed.
func (e *Engine) publish(ctx context.Context, auctionID string, t notify.Type, payload any) {
	evt, err := notify.New(auctionID, t, payload, e.clock.Now().UTC())
	if err == nil {
		err = e.notifier.Publish(ctx, evt)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("auction_id", auctionID),
			slog.String("event_type", string(t)),
			slog.Any("error", err),
		)
	}
}

// quantized reports whether amount is a positive multiple of BidStep within
// the ceiling.
func quantized(amount int64) bool {
	return amount > 0 && amount <= BidCeiling && amount%BidStep == 0
}

// asNotFound converts a store missing-record error into the engine's
// user-facing sentinel.
func asNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
