package notify_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hammermarket/auctiond/internal/notify"
)

func TestNew_BuildsEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := notify.New("a1", notify.AuctionClosed, notify.AuctionClosedData{
		FinalPrice: ptr(int64(10_300)),
	}, at)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.AuctionID != "a1" || e.Type != notify.AuctionClosed || !e.At.Equal(at) {
		t.Errorf("event = %+v", e)
	}

	var data notify.AuctionClosedData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if data.FinalPrice == nil || *data.FinalPrice != 10_300 {
		t.Errorf("payload = %+v", data)
	}
}

func TestNew_RejectsUnmarshalablePayload(t *testing.T) {
	if _, err := notify.New("a1", notify.BidPlaced, make(chan int), time.Now()); err == nil {
		t.Fatal("expected an error for a payload json cannot encode")
	}
}

func ptr[T any](v T) *T { return &v }
