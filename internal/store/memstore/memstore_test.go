package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/store"
	"github.com/hammermarket/auctiond/internal/store/memstore"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedAuction(t *testing.T, st store.Store, id string, status store.Status, startAt, endAt time.Time) {
	t.Helper()
	err := st.Auctions().Create(context.Background(), &store.Auction{
		ID:         id,
		SellerID:   "seller",
		Title:      "Test listing",
		StartPrice: 1_000,
		MinBidStep: 100,
		Status:     status,
		StartAt:    startAt,
		EndAt:      endAt,
	})
	if err != nil {
		t.Fatalf("Create auction %s: %v", id, err)
	}
}

func TestAccounts_NotFound(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))

	_, err := st.Accounts().Get(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	err = st.Accounts().SetBalances(context.Background(), "ghost", 1, 2)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SetBalances error = %v, want ErrNotFound", err)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, &store.Account{UserID: "alice", Spendable: 100}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}

	if _, err := st.Accounts().Get(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after rollback: error = %v, want ErrNotFound", err)
	}
}

func TestInTx_ReadYourWrites(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, &store.Account{UserID: "alice", Spendable: 100}); err != nil {
			return err
		}
		a, err := tx.Accounts().Get(ctx, "alice")
		if err != nil {
			return err
		}
		if a.Spendable != 100 {
			t.Errorf("Spendable inside tx = %d, want 100", a.Spendable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	if _, err := st.Accounts().Get(ctx, "alice"); err != nil {
		t.Errorf("Get after commit: %v", err)
	}
}

func TestBids_HighestTieBreaksOnEarlierTimestamp(t *testing.T) {
	clk := clock.NewMock(t0)
	st := memstore.New(clk)
	ctx := context.Background()

	seedAuction(t, st, "a1", store.StatusOpen, t0.Add(-time.Hour), t0.Add(time.Hour))

	if err := st.Bids().Create(ctx, &store.Bid{ID: "b1", AuctionID: "a1", BidderID: "bob", Amount: 2_000}); err != nil {
		t.Fatalf("Create b1: %v", err)
	}
	clk.Advance(time.Second)
	if err := st.Bids().Create(ctx, &store.Bid{ID: "b2", AuctionID: "a1", BidderID: "carol", Amount: 2_000}); err != nil {
		t.Fatalf("Create b2: %v", err)
	}
	clk.Advance(time.Second)
	if err := st.Bids().Create(ctx, &store.Bid{ID: "b3", AuctionID: "a1", BidderID: "dave", Amount: 1_000}); err != nil {
		t.Fatalf("Create b3: %v", err)
	}

	highest, err := st.Bids().Highest(ctx, "a1")
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if highest == nil || highest.ID != "b1" {
		t.Fatalf("Highest = %+v, want b1 (earliest of the tied amounts)", highest)
	}
}

func TestBids_HighestNilWhenEmpty(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))
	seedAuction(t, st, "a1", store.StatusOpen, t0.Add(-time.Hour), t0.Add(time.Hour))

	highest, err := st.Bids().Highest(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if highest != nil {
		t.Fatalf("Highest = %+v, want nil", highest)
	}
}

func TestBids_CreateRequiresAuction(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))

	err := st.Bids().Create(context.Background(), &store.Bid{ID: "b1", AuctionID: "missing", BidderID: "bob", Amount: 100})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestAuctions_StatusTransitions(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))
	ctx := context.Background()

	seedAuction(t, st, "a1", store.StatusScheduled, t0, t0.Add(time.Hour))

	if err := st.Auctions().MarkOpen(ctx, "a1"); err != nil {
		t.Fatalf("MarkOpen: %v", err)
	}
	// A second MarkOpen is rejected: the auction is no longer SCHEDULED.
	if err := st.Auctions().MarkOpen(ctx, "a1"); err == nil {
		t.Error("MarkOpen on OPEN auction succeeded, want error")
	}

	winID := "b1"
	if err := st.Auctions().Close(ctx, "a1", &winID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	a, err := st.Auctions().GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if a.Status != store.StatusClosed || a.WinningBidID == nil || *a.WinningBidID != "b1" {
		t.Errorf("after close: status=%s winning=%v", a.Status, a.WinningBidID)
	}

	// Terminal states cannot be canceled.
	if err := st.Auctions().Cancel(ctx, "a1"); err == nil {
		t.Error("Cancel on CLOSED auction succeeded, want error")
	}
}

func TestAuctions_SweepQueries(t *testing.T) {
	st := memstore.New(clock.NewMock(t0))
	ctx := context.Background()

	seedAuction(t, st, "due-start", store.StatusScheduled, t0.Add(-time.Minute), t0.Add(time.Hour))
	seedAuction(t, st, "future-start", store.StatusScheduled, t0.Add(time.Hour), t0.Add(2*time.Hour))
	seedAuction(t, st, "expired", store.StatusOpen, t0.Add(-2*time.Hour), t0.Add(-time.Minute))
	seedAuction(t, st, "running", store.StatusOpen, t0.Add(-time.Hour), t0.Add(time.Hour))

	scheduled, err := st.Auctions().ListScheduledBefore(ctx, t0)
	if err != nil {
		t.Fatalf("ListScheduledBefore: %v", err)
	}
	if len(scheduled) != 1 || scheduled[0].ID != "due-start" {
		t.Errorf("ListScheduledBefore = %v, want [due-start]", ids(scheduled))
	}

	expired, err := st.Auctions().ListExpiredBefore(ctx, t0)
	if err != nil {
		t.Fatalf("ListExpiredBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "expired" {
		t.Errorf("ListExpiredBefore = %v, want [expired]", ids(expired))
	}
}

func ids(auctions []store.Auction) []string {
	out := make([]string, len(auctions))
	for i, a := range auctions {
		out[i] = a.ID
	}
	return out
}
