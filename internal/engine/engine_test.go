package engine_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/engine"
	"github.com/hammermarket/auctiond/internal/notify"
	"github.com/hammermarket/auctiond/internal/store"
	"github.com/hammermarket/auctiond/internal/store/memstore"
)

var testTP = noop.NewTracerProvider()

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingNotifier captures published events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) ofType(t notify.Type) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	engine   *engine.Engine
	store    store.Store
	clock    *clock.Mock
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewMock(testStart)
	st := memstore.New(clk)
	n := &recordingNotifier{}
	return &testEnv{
		engine:   engine.New(st, n, clk, slog.Default(), testTP),
		store:    st,
		clock:    clk,
		notifier: n,
	}
}

// openAuction creates an auction that is already OPEN, with a one hour
// window and the given prices.
func (env *testEnv) openAuction(t *testing.T, sellerID string, startPrice int64, buyout *int64) *store.Auction {
	t.Helper()
	a, err := env.engine.CreateAuction(context.Background(), engine.CreateAuctionParams{
		SellerID:    sellerID,
		Title:       "Vintage synthesizer",
		Category:    "music",
		StartPrice:  startPrice,
		MinBidStep:  engine.BidStep,
		BuyoutPrice: buyout,
		StartAt:     env.clock.Now().Add(-time.Minute),
		EndAt:       env.clock.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAuction: %v", err)
	}
	if a.Status != store.StatusOpen {
		t.Fatalf("auction status = %s, want OPEN", a.Status)
	}
	return a
}

func (env *testEnv) account(t *testing.T, userID string) *store.Account {
	t.Helper()
	a, err := env.store.Accounts().Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get account %s: %v", userID, err)
	}
	return a
}

func (env *testEnv) auction(t *testing.T, id string) *store.Auction {
	t.Helper()
	a, err := env.store.Auctions().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID %s: %v", id, err)
	}
	return a
}

func ptr(v int64) *int64 { return &v }
