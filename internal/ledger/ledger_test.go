package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/ledger"
	"github.com/hammermarket/auctiond/internal/store"
	"github.com/hammermarket/auctiond/internal/store/memstore"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	return memstore.New(clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func account(t *testing.T, st store.Store, userID string) *store.Account {
	t.Helper()
	a, err := st.Accounts().Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get(%s): %v", userID, err)
	}
	return a
}

func TestEnsure_GrantsStartingBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		a, err := ledger.Ensure(ctx, tx.Accounts(), "alice")
		if err != nil {
			return err
		}
		if a.Spendable != ledger.StartingGrant {
			t.Errorf("Spendable = %d, want %d", a.Spendable, ledger.StartingGrant)
		}
		if a.Escrowed != 0 {
			t.Errorf("Escrowed = %d, want 0", a.Escrowed)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	// A second Ensure returns the same account, no second grant.
	err = st.InTx(ctx, func(tx store.Tx) error {
		a, err := ledger.Ensure(ctx, tx.Accounts(), "alice")
		if err != nil {
			return err
		}
		if a.Spendable != ledger.StartingGrant {
			t.Errorf("Spendable after second Ensure = %d, want %d", a.Spendable, ledger.StartingGrant)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func TestEscrowAndRelease(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "alice"); err != nil {
			return err
		}
		return ledger.Escrow(ctx, tx.Accounts(), "alice", 5_000)
	})
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}

	a := account(t, st, "alice")
	if a.Spendable != ledger.StartingGrant-5_000 {
		t.Errorf("Spendable = %d, want %d", a.Spendable, ledger.StartingGrant-5_000)
	}
	if a.Escrowed != 5_000 {
		t.Errorf("Escrowed = %d, want 5000", a.Escrowed)
	}

	err = st.InTx(ctx, func(tx store.Tx) error {
		return ledger.Release(ctx, tx.Accounts(), "alice", 5_000)
	})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}

	a = account(t, st, "alice")
	if a.Spendable != ledger.StartingGrant || a.Escrowed != 0 {
		t.Errorf("after release: spendable=%d escrowed=%d, want %d/0", a.Spendable, a.Escrowed, ledger.StartingGrant)
	}
}

func TestEscrow_InsufficientFunds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "alice"); err != nil {
			return err
		}
		return ledger.Escrow(ctx, tx.Accounts(), "alice", ledger.StartingGrant+100)
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	// The failed transaction must not have created partial state.
	if _, err := st.Accounts().Get(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after rollback: error = %v, want ErrNotFound", err)
	}
}

func TestRelease_MoreThanEscrowed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "alice"); err != nil {
			return err
		}
		if err := ledger.Escrow(ctx, tx.Accounts(), "alice", 1_000); err != nil {
			return err
		}
		return ledger.Release(ctx, tx.Accounts(), "alice", 2_000)
	})
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestTransfer(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "buyer"); err != nil {
			return err
		}
		if err := ledger.Escrow(ctx, tx.Accounts(), "buyer", 10_000); err != nil {
			return err
		}
		return ledger.Transfer(ctx, tx.Accounts(), "buyer", 10_000, "seller")
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	buyer := account(t, st, "buyer")
	if buyer.Spendable != ledger.StartingGrant-10_000 || buyer.Escrowed != 0 {
		t.Errorf("buyer: spendable=%d escrowed=%d", buyer.Spendable, buyer.Escrowed)
	}

	// The seller account is created on the fly and ends up with the grant
	// plus the proceeds.
	seller := account(t, st, "seller")
	if seller.Spendable != ledger.StartingGrant+10_000 {
		t.Errorf("seller spendable = %d, want %d", seller.Spendable, ledger.StartingGrant+10_000)
	}
}

func TestTransfer_WithoutEscrow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "buyer"); err != nil {
			return err
		}
		return ledger.Transfer(ctx, tx.Accounts(), "buyer", 500, "seller")
	})
	if !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestDebitAndCredit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		if _, err := ledger.Ensure(ctx, tx.Accounts(), "buyer"); err != nil {
			return err
		}
		if err := ledger.Debit(ctx, tx.Accounts(), "buyer", 3_000); err != nil {
			return err
		}
		return ledger.Credit(ctx, tx.Accounts(), "seller", 3_000)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	if got := account(t, st, "buyer").Spendable; got != ledger.StartingGrant-3_000 {
		t.Errorf("buyer spendable = %d, want %d", got, ledger.StartingGrant-3_000)
	}
	if got := account(t, st, "seller").Spendable; got != ledger.StartingGrant+3_000 {
		t.Errorf("seller spendable = %d, want %d", got, ledger.StartingGrant+3_000)
	}
}

// TestConservation verifies that fund movements never create or destroy
// money beyond the starting grants.
func TestConservation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InTx(ctx, func(tx store.Tx) error {
		for _, u := range []string{"a", "b", "c"} {
			if _, err := ledger.Ensure(ctx, tx.Accounts(), u); err != nil {
				return err
			}
		}
		if err := ledger.Escrow(ctx, tx.Accounts(), "a", 40_000); err != nil {
			return err
		}
		if err := ledger.Release(ctx, tx.Accounts(), "a", 40_000); err != nil {
			return err
		}
		if err := ledger.Escrow(ctx, tx.Accounts(), "b", 25_000); err != nil {
			return err
		}
		return ledger.Transfer(ctx, tx.Accounts(), "b", 25_000, "c")
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	total, err := st.Accounts().TotalFunds(ctx)
	if err != nil {
		t.Fatalf("TotalFunds: %v", err)
	}
	if want := 3 * ledger.StartingGrant; total != want {
		t.Errorf("TotalFunds = %d, want %d", total, want)
	}
}
