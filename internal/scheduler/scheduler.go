// Package scheduler drives auctions across their time boundaries. A
// recurring tick runs two idempotent sweeps: promotion (SCHEDULED -> OPEN
// once the start time passes) and expiry (OPEN -> CLOSED with settlement
// once the end time passes). The timer lives here; the per-auction
// transition logic lives in the engine, so a tick can be invoked directly
// in tests with a mock clock.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/engine"
	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/store"
)

// Scheduler owns the tick timer and the sweep loops.
type Scheduler struct {
	store    store.Store
	engine   *engine.Engine
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	interval time.Duration
}

// New creates a Scheduler ticking at the given interval.
func New(st store.Store, eng *engine.Engine, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    st,
		engine:   eng,
		clock:    clk,
		logger:   logger,
		tracer:   tp.Tracer("github.com/hammermarket/auctiond/internal/scheduler"),
		interval: interval,
	}
}

// Run ticks until ctx is canceled. Only one Run loop must be active across
// all replicas; cmd wiring enforces that via leader election.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock.Now())
		}
	}
}

// Tick runs one promotion sweep and one expiry sweep as of now. Each
// auction is handled independently: one failure is logged and left for the
// next tick, and never blocks the rest of the sweep. Returns the number of
// auctions opened and settled.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (opened, settled int) {
	ctx, span := s.tracer.Start(ctx, "Scheduler.Tick")
	defer span.End()

	opened = s.promote(ctx, now)
	settled = s.expire(ctx, now)

	span.SetAttributes(
		attribute.Int("auctions.opened", opened),
		attribute.Int("auctions.settled", settled),
	)
	if opened > 0 || settled > 0 {
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("opened", opened),
			slog.Int("settled", settled),
		)
	}
	return opened, settled
}

func (s *Scheduler) promote(ctx context.Context, now time.Time) int {
	due, err := s.store.Auctions().ListScheduledBefore(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing scheduled auctions failed", slog.Any("error", err))
		return 0
	}

	opened := 0
	for _, a := range due {
		ok, err := s.engine.OpenScheduled(ctx, a.ID)
		if err != nil {
			s.sweepError(ctx, "promotion", a.ID, err)
			continue
		}
		if ok {
			opened++
		}
	}
	return opened
}

func (s *Scheduler) expire(ctx context.Context, now time.Time) int {
	due, err := s.store.Auctions().ListExpiredBefore(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "listing expired auctions failed", slog.Any("error", err))
		return 0
	}

	settled := 0
	for _, a := range due {
		ok, err := s.engine.SettleExpired(ctx, a.ID)
		if err != nil {
			s.sweepError(ctx, "expiry", a.ID, err)
			continue
		}
		if ok {
			settled++
		}
	}
	return settled
}

// sweepError logs a per-auction sweep failure. A ledger inconsistency is a
// programming defect, not an operational hiccup, so it logs at error
// severity where it can alert; the auction stays eligible and is retried
// on the next tick either way.
func (s *Scheduler) sweepError(ctx context.Context, sweep, auctionID string, err error) {
	if errors.Is(err, ledger.ErrInvalidState) {
		s.logger.ErrorContext(ctx, "fund bookkeeping inconsistency during sweep",
			slog.String("sweep", sweep),
			slog.String("auction_id", auctionID),
			slog.Any("error", err),
		)
		return
	}
	s.logger.WarnContext(ctx, "sweep failed for auction, will retry next tick",
		slog.String("sweep", sweep),
		slog.String("auction_id", auctionID),
		slog.Any("error", err),
	)
}
