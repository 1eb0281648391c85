package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hammermarket/auctiond/internal/clock"
	"github.com/hammermarket/auctiond/internal/store"
)

// AccountRepo implements store.AccountRepository with sqlx.
type AccountRepo struct {
	q   queryer
	clk clock.Clock
}

func (r *AccountRepo) Get(ctx context.Context, userID string) (*store.Account, error) {
	var a store.Account
	err := sqlx.GetContext(ctx, r.q, &a, `SELECT * FROM accounts WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) GetForUpdate(ctx context.Context, userID string) (*store.Account, error) {
	var a store.Account
	err := sqlx.GetContext(ctx, r.q, &a, `SELECT * FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *store.Account) error {
	now := r.clk.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO accounts (user_id, spendable, escrowed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.UserID, a.Spendable, a.Escrowed, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

func (r *AccountRepo) SetBalances(ctx context.Context, userID string, spendable, escrowed int64) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE accounts SET spendable = $1, escrowed = $2, updated_at = $3 WHERE user_id = $4`,
		spendable, escrowed, r.clk.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("updating balances: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("account %s: %w", userID, store.ErrNotFound)
	}
	return nil
}

func (r *AccountRepo) TotalFunds(ctx context.Context) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, r.q, &total,
		`SELECT COALESCE(SUM(spendable + escrowed), 0) FROM accounts`)
	if err != nil {
		return 0, fmt.Errorf("summing funds: %w", err)
	}
	return total, nil
}
