// Package notify defines the event payloads produced by the settlement
// engine and the fan-out boundary they cross. The engine only ever talks to
// the Notifier interface; delivery is fire-and-forget and a failed publish
// never affects the settlement that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	BidPlaced       Type = "auction.bid_placed"
	AuctionOpened   Type = "auction.opened"
	AuctionClosed   Type = "auction.closed"
	AuctionCanceled Type = "auction.canceled"
)

// Event is a single lifecycle or bid event scoped to one auction. Observers
// subscribed to the auction receive every event published for it.
type Event struct {
	AuctionID string          `json:"auction_id"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	At        time.Time       `json:"at"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	BidderID     string `json:"bidder_id"`
	Amount       int64  `json:"amount"`
	CurrentPrice int64  `json:"current_price"`
}

// AuctionClosedData is the payload for AuctionClosed events.
type AuctionClosedData struct {
	WinningBidID *string `json:"winning_bid_id"`
	FinalPrice   *int64  `json:"final_price"`
}

// Notifier accepts events for fan-out to subscribed observers.
// Implementations must not block on slow consumers.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// New builds an Event for auctionID with the given payload.
func New(auctionID string, t Type, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{AuctionID: auctionID, Type: t, Data: data, At: at}, nil
}

// Nop is a Notifier that discards all events.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(context.Context, Event) error { return nil }
