// Package memstore provides an in-memory store.Store used by unit tests and
// local development. Transactions take a store-wide write lock and mutate a
// copy of the dataset, swapping it in on commit, so rollback and
// read-your-writes semantics match the Postgres backend. The coarse lock
// also gives the per-key serialization the engine relies on.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/config"
	"github.com/hammermarket/auctiond/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (store.Store, error) {
		return New(clk), nil
	})
}

// Memstore implements store.Store in memory.
type Memstore struct {
	mu  sync.RWMutex
	clk clock.Clock
	d   *dataset
}

type dataset struct {
	accounts map[string]store.Account
	auctions map[string]store.Auction
	bids     map[string][]store.Bid // auctionID -> bids in insertion order
}

// New returns an empty Memstore.
func New(clk clock.Clock) *Memstore {
	return &Memstore{
		clk: clk,
		d: &dataset{
			accounts: make(map[string]store.Account),
			auctions: make(map[string]store.Auction),
			bids:     make(map[string][]store.Bid),
		},
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		accounts: make(map[string]store.Account, len(d.accounts)),
		auctions: make(map[string]store.Auction, len(d.auctions)),
		bids:     make(map[string][]store.Bid, len(d.bids)),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.auctions {
		c.auctions[k] = v
	}
	for k, v := range d.bids {
		c.bids[k] = append([]store.Bid(nil), v...)
	}
	return c
}

// InTx runs fn against a copy of the dataset under the store lock, making
// the whole transaction atomic and serialized.
func (m *Memstore) InTx(_ context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.d.clone()
	if err := fn(&view{d: work, clk: m.clk}); err != nil {
		return err
	}
	m.d = work
	return nil
}

// Accounts returns the non-transactional account repository.
func (m *Memstore) Accounts() store.AccountRepository {
	return accountRepo{&view{s: m, clk: m.clk}}
}

// Auctions returns the non-transactional auction repository.
func (m *Memstore) Auctions() store.AuctionRepository {
	return auctionRepo{&view{s: m, clk: m.clk}}
}

// Bids returns the non-transactional bid repository.
func (m *Memstore) Bids() store.BidRepository {
	return bidRepo{&view{s: m, clk: m.clk}}
}

// Ping always succeeds.
func (m *Memstore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memstore) Close() error { return nil }

// view is one access path to the data. Inside a transaction it holds the
// working dataset directly (d != nil); outside one it locks the parent
// store per call.
type view struct {
	d   *dataset
	s   *Memstore
	clk clock.Clock
}

func (v *view) Accounts() store.AccountRepository { return accountRepo{v} }
func (v *view) Auctions() store.AuctionRepository { return auctionRepo{v} }
func (v *view) Bids() store.BidRepository         { return bidRepo{v} }

func (v *view) read(fn func(d *dataset) error) error {
	if v.d != nil {
		return fn(v.d)
	}
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return fn(v.s.d)
}

func (v *view) write(fn func(d *dataset) error) error {
	if v.d != nil {
		return fn(v.d)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.d)
}

// accountRepo implements store.AccountRepository.
type accountRepo struct{ *view }

func (r accountRepo) Get(_ context.Context, userID string) (*store.Account, error) {
	var out *store.Account
	err := r.read(func(d *dataset) error {
		a, ok := d.accounts[userID]
		if !ok {
			return fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
		}
		out = &a
		return nil
	})
	return out, err
}

// GetForUpdate behaves like Get; serialization comes from the store lock
// held for the whole transaction.
func (r accountRepo) GetForUpdate(ctx context.Context, userID string) (*store.Account, error) {
	return r.Get(ctx, userID)
}

func (r accountRepo) Create(_ context.Context, a *store.Account) error {
	return r.write(func(d *dataset) error {
		if _, exists := d.accounts[a.UserID]; exists {
			return fmt.Errorf("account %s already exists", a.UserID)
		}
		now := r.clk.Now().UTC()
		a.CreatedAt = now
		a.UpdatedAt = now
		d.accounts[a.UserID] = *a
		return nil
	})
}

func (r accountRepo) SetBalances(_ context.Context, userID string, spendable, escrowed int64) error {
	return r.write(func(d *dataset) error {
		a, ok := d.accounts[userID]
		if !ok {
			return fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
		}
		a.Spendable = spendable
		a.Escrowed = escrowed
		a.UpdatedAt = r.clk.Now().UTC()
		d.accounts[userID] = a
		return nil
	})
}

func (r accountRepo) TotalFunds(_ context.Context) (int64, error) {
	var total int64
	err := r.read(func(d *dataset) error {
		for _, a := range d.accounts {
			total += a.Spendable + a.Escrowed
		}
		return nil
	})
	return total, err
}

// auctionRepo implements store.AuctionRepository.
type auctionRepo struct{ *view }

func (r auctionRepo) Create(_ context.Context, a *store.Auction) error {
	return r.write(func(d *dataset) error {
		if _, exists := d.auctions[a.ID]; exists {
			return fmt.Errorf("auction %s already exists", a.ID)
		}
		now := r.clk.Now().UTC()
		a.CreatedAt = now
		a.UpdatedAt = now
		d.auctions[a.ID] = *a
		return nil
	})
}

func (r auctionRepo) GetByID(_ context.Context, id string) (*store.Auction, error) {
	var out *store.Auction
	err := r.read(func(d *dataset) error {
		a, ok := d.auctions[id]
		if !ok {
			return fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r auctionRepo) GetForUpdate(ctx context.Context, id string) (*store.Auction, error) {
	return r.GetByID(ctx, id)
}

func (r auctionRepo) SetCurrentPrice(_ context.Context, id string, price int64) error {
	return r.mutate(id, func(a *store.Auction) error {
		a.CurrentPrice = &price
		return nil
	})
}

func (r auctionRepo) MarkOpen(_ context.Context, id string) error {
	return r.mutate(id, func(a *store.Auction) error {
		if a.Status != store.StatusScheduled {
			return fmt.Errorf("auction %s is %s, cannot open", id, a.Status)
		}
		a.Status = store.StatusOpen
		return nil
	})
}

func (r auctionRepo) Close(_ context.Context, id string, winningBidID *string) error {
	return r.mutate(id, func(a *store.Auction) error {
		if a.Status != store.StatusOpen {
			return fmt.Errorf("auction %s is %s, cannot close", id, a.Status)
		}
		a.Status = store.StatusClosed
		a.WinningBidID = winningBidID
		return nil
	})
}

func (r auctionRepo) Cancel(_ context.Context, id string) error {
	return r.mutate(id, func(a *store.Auction) error {
		if a.Status != store.StatusScheduled && a.Status != store.StatusOpen {
			return fmt.Errorf("auction %s is %s, cannot cancel", id, a.Status)
		}
		a.Status = store.StatusCanceled
		return nil
	})
}

func (r auctionRepo) mutate(id string, fn func(a *store.Auction) error) error {
	return r.write(func(d *dataset) error {
		a, ok := d.auctions[id]
		if !ok {
			return fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
		}
		if err := fn(&a); err != nil {
			return err
		}
		a.UpdatedAt = r.clk.Now().UTC()
		d.auctions[id] = a
		return nil
	})
}

func (r auctionRepo) List(_ context.Context) ([]store.Auction, error) {
	return r.list(func(store.Auction) bool { return true })
}

func (r auctionRepo) ListScheduledBefore(_ context.Context, t time.Time) ([]store.Auction, error) {
	return r.list(func(a store.Auction) bool {
		return a.Status == store.StatusScheduled && !a.StartAt.After(t)
	})
}

func (r auctionRepo) ListExpiredBefore(_ context.Context, t time.Time) ([]store.Auction, error) {
	return r.list(func(a store.Auction) bool {
		return a.Status == store.StatusOpen && !a.EndAt.After(t)
	})
}

func (r auctionRepo) list(keep func(store.Auction) bool) ([]store.Auction, error) {
	var out []store.Auction
	err := r.read(func(d *dataset) error {
		for _, a := range d.auctions {
			if keep(a) {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// bidRepo implements store.BidRepository.
type bidRepo struct{ *view }

func (r bidRepo) Create(_ context.Context, b *store.Bid) error {
	return r.write(func(d *dataset) error {
		if _, ok := d.auctions[b.AuctionID]; !ok {
			return fmt.Errorf("auction %s: %w", b.AuctionID, store.ErrNotFound)
		}
		b.CreatedAt = r.clk.Now().UTC()
		d.bids[b.AuctionID] = append(d.bids[b.AuctionID], *b)
		return nil
	})
}

func (r bidRepo) Highest(_ context.Context, auctionID string) (*store.Bid, error) {
	var out *store.Bid
	err := r.read(func(d *dataset) error {
		bids := d.bids[auctionID]
		if len(bids) == 0 {
			return nil
		}
		best := bids[0]
		for _, b := range bids[1:] {
			if b.Amount > best.Amount || (b.Amount == best.Amount && b.CreatedAt.Before(best.CreatedAt)) {
				best = b
			}
		}
		out = &best
		return nil
	})
	return out, err
}

func (r bidRepo) ListByAuction(_ context.Context, auctionID string) ([]store.Bid, error) {
	var out []store.Bid
	err := r.read(func(d *dataset) error {
		out = append(out, d.bids[auctionID]...)
		return nil
	})
	return out, err
}

func (r bidRepo) ListByBidder(_ context.Context, bidderID string) ([]store.Bid, error) {
	var out []store.Bid
	err := r.read(func(d *dataset) error {
		for _, bids := range d.bids {
			for _, b := range bids {
				if b.BidderID == bidderID {
					out = append(out, b)
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r bidRepo) CountByAuction(_ context.Context, auctionID string) (int, error) {
	var n int
	err := r.read(func(d *dataset) error {
		n = len(d.bids[auctionID])
		return nil
	})
	return n, err
}
