// Package ledger implements the fund ledger: atomic escrow, release and
// transfer primitives over account records. All functions operate on a
// transaction-scoped AccountRepository; callers are responsible for running
// them inside store.InTx on rows locked with GetForUpdate, which is what
// makes a multi-step fund movement one atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/hammermarket/auctiond/internal/store"
)

// StartingGrant is credited to every account on first touch, in minor
// currency units.
const StartingGrant int64 = 100_000_000

// Errors returned by ledger operations.
var (
	// ErrInsufficientFunds means the spendable balance does not cover the
	// requested amount. A normal, user-facing rejection.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidState means a release or transfer would drive an escrowed
	// balance negative. This signals a bookkeeping defect upstream, never a
	// user error, and must be surfaced loudly rather than absorbed.
	ErrInvalidState = errors.New("ledger bookkeeping inconsistency")
)

// Ensure returns the account for userID, creating it with the starting
// grant if it does not exist yet. Accounts are never deleted.
func Ensure(ctx context.Context, accounts store.AccountRepository, userID string) (*store.Account, error) {
	acct, err := accounts.Get(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading account %s: %w", userID, err)
	}

	acct = &store.Account{
		UserID:    userID,
		Spendable: StartingGrant,
		Escrowed:  0,
	}
	if err := accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("creating account %s: %w", userID, err)
	}
	return acct, nil
}

// Available returns the spendable balance for userID. Escrowed funds are by
// definition unavailable for new commitments.
func Available(ctx context.Context, accounts store.AccountRepository, userID string) (int64, error) {
	acct, err := Ensure(ctx, accounts, userID)
	if err != nil {
		return 0, err
	}
	return acct.Spendable, nil
}

// Escrow moves amount from userID's spendable balance into escrow.
func Escrow(ctx context.Context, accounts store.AccountRepository, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("escrow of %d for %s: %w", amount, userID, ErrInvalidState)
	}
	acct, err := accounts.GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", userID, err)
	}
	if acct.Spendable < amount {
		return fmt.Errorf("escrow of %d for %s (spendable %d): %w", amount, userID, acct.Spendable, ErrInsufficientFunds)
	}
	return accounts.SetBalances(ctx, userID, acct.Spendable-amount, acct.Escrowed+amount)
}

// Release moves amount from userID's escrow back to the spendable balance.
func Release(ctx context.Context, accounts store.AccountRepository, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("release of %d for %s: %w", amount, userID, ErrInvalidState)
	}
	acct, err := accounts.GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", userID, err)
	}
	if acct.Escrowed < amount {
		return fmt.Errorf("release of %d for %s (escrowed %d): %w", amount, userID, acct.Escrowed, ErrInvalidState)
	}
	return accounts.SetBalances(ctx, userID, acct.Spendable+amount, acct.Escrowed-amount)
}

// Transfer settles amount of fromID's escrowed funds into toID's spendable
// balance. Used when a sale completes: the hold placed at bid time becomes
// the seller's money.
func Transfer(ctx context.Context, accounts store.AccountRepository, fromID string, amount int64, toID string) error {
	if amount < 0 {
		return fmt.Errorf("transfer of %d from %s: %w", amount, fromID, ErrInvalidState)
	}
	from, err := accounts.GetForUpdate(ctx, fromID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", fromID, err)
	}
	if from.Escrowed < amount {
		return fmt.Errorf("transfer of %d from %s (escrowed %d): %w", amount, fromID, from.Escrowed, ErrInvalidState)
	}
	if _, err := Ensure(ctx, accounts, toID); err != nil {
		return err
	}
	to, err := accounts.GetForUpdate(ctx, toID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", toID, err)
	}
	if err := accounts.SetBalances(ctx, fromID, from.Spendable, from.Escrowed-amount); err != nil {
		return err
	}
	return accounts.SetBalances(ctx, toID, to.Spendable+amount, to.Escrowed)
}

// Debit removes amount directly from userID's spendable balance. Used for
// buyout, which settles immediately instead of holding funds.
func Debit(ctx context.Context, accounts store.AccountRepository, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit of %d for %s: %w", amount, userID, ErrInvalidState)
	}
	acct, err := accounts.GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", userID, err)
	}
	if acct.Spendable < amount {
		return fmt.Errorf("debit of %d for %s (spendable %d): %w", amount, userID, acct.Spendable, ErrInsufficientFunds)
	}
	return accounts.SetBalances(ctx, userID, acct.Spendable-amount, acct.Escrowed)
}

// Credit adds amount directly to userID's spendable balance, creating the
// account if needed.
func Credit(ctx context.Context, accounts store.AccountRepository, userID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit of %d for %s: %w", amount, userID, ErrInvalidState)
	}
	if _, err := Ensure(ctx, accounts, userID); err != nil {
		return err
	}
	acct, err := accounts.GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("locking account %s: %w", userID, err)
	}
	return accounts.SetBalances(ctx, userID, acct.Spendable+amount, acct.Escrowed)
}
