package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Status is the lifecycle state of an auction.
type Status string

// Auction lifecycle states. Transitions are monotonic:
// SCHEDULED -> OPEN -> {CLOSED, CANCELED}, with CANCELED also reachable
// directly from SCHEDULED. CLOSED and CANCELED are terminal.
const (
	StatusScheduled Status = "SCHEDULED"
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
	StatusCanceled  Status = "CANCELED"
)

// Account holds a user's funds in minor currency units, split into a
// spendable and an escrowed portion. Escrowed funds back active bids and
// are unavailable for new commitments.
type Account struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Spendable int64     `json:"spendable" db:"spendable"`
	Escrowed  int64     `json:"escrowed" db:"escrowed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Auction is a single listing moving through the lifecycle state machine.
type Auction struct {
	ID           string    `json:"id" db:"id"`
	SellerID     string    `json:"seller_id" db:"seller_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Category     string    `json:"category" db:"category"`
	SubCategory  string    `json:"sub_category" db:"sub_category"`
	StartPrice   int64     `json:"start_price" db:"start_price"`
	MinBidStep   int64     `json:"min_bid_step" db:"min_bid_step"`
	CurrentPrice *int64    `json:"current_price" db:"current_price"`
	BuyoutPrice  *int64    `json:"buyout_price" db:"buyout_price"`
	Status       Status    `json:"status" db:"status"`
	WinningBidID *string   `json:"winning_bid_id" db:"winning_bid_id"`
	StartAt      time.Time `json:"start_at" db:"start_at"`
	EndAt        time.Time `json:"end_at" db:"end_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Price returns the effective current price: the highest admitted bid, or
// the start price while no bid exists.
func (a *Auction) Price() int64 {
	if a.CurrentPrice != nil {
		return *a.CurrentPrice
	}
	return a.StartPrice
}

// Floor returns the minimum acceptable next bid.
func (a *Auction) Floor() int64 {
	return a.Price() + a.MinBidStep
}

// Bid is an immutable record of one admitted bid.
type Bid struct {
	ID        string    `json:"id" db:"id"`
	AuctionID string    `json:"auction_id" db:"auction_id"`
	BidderID  string    `json:"bidder_id" db:"bidder_id"`
	Amount    int64     `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AccountRepository defines account persistence operations.
type AccountRepository interface {
	Get(ctx context.Context, userID string) (*Account, error)
	// GetForUpdate loads the account and holds a write lock on it for the
	// remainder of the enclosing transaction, serializing concurrent fund
	// operations per account.
	GetForUpdate(ctx context.Context, userID string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	SetBalances(ctx context.Context, userID string, spendable, escrowed int64) error
	// TotalFunds returns the sum of spendable+escrowed across all accounts.
	TotalFunds(ctx context.Context) (int64, error)
}

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	// GetForUpdate locks the auction row for the rest of the transaction,
	// serializing bid admission and settlement per auction.
	GetForUpdate(ctx context.Context, id string) (*Auction, error)
	SetCurrentPrice(ctx context.Context, id string, price int64) error
	// MarkOpen promotes a SCHEDULED auction to OPEN.
	MarkOpen(ctx context.Context, id string) error
	// Close moves an OPEN auction to CLOSED, recording the winning bid if any.
	Close(ctx context.Context, id string, winningBidID *string) error
	// Cancel moves a SCHEDULED or OPEN auction to CANCELED.
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]Auction, error)
	ListScheduledBefore(ctx context.Context, t time.Time) ([]Auction, error)
	ListExpiredBefore(ctx context.Context, t time.Time) ([]Auction, error)
}

// BidRepository defines bid persistence operations. Bids are append-only.
type BidRepository interface {
	Create(ctx context.Context, b *Bid) error
	// Highest returns the current highest bid for an auction, ordered by
	// amount descending with earliest-timestamp tie-break, or nil if the
	// auction has no bids.
	Highest(ctx context.Context, auctionID string) (*Bid, error)
	ListByAuction(ctx context.Context, auctionID string) ([]Bid, error)
	ListByBidder(ctx context.Context, bidderID string) ([]Bid, error)
	CountByAuction(ctx context.Context, auctionID string) (int, error)
}

// Tx exposes the repositories scoped to one atomic unit of work.
type Tx interface {
	Accounts() AccountRepository
	Auctions() AuctionRepository
	Bids() BidRepository
}

// Store bundles the repositories with a transaction runner. Reads outside a
// transaction go through the embedded Tx; every multi-record mutation must
// run inside InTx so that partial state is never observable.
type Store interface {
	Tx
	// InTx runs fn inside one transaction, committing on nil and rolling
	// back on error. Locks taken via GetForUpdate are held until the
	// transaction ends.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
