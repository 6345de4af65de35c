package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/willemschots/accounts/internal/auth"
)

type Tx struct {
	ctx   context.Context
	tx    *sqlx.Tx
	store *Store
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// CreateAccount creates an account in the database.
// The ID of the account needs to be set by the caller.
func (t *Tx) CreateAccount(a *auth.Account) error {
	return insertAccount(t.ctx, t.store.newQuery(), t.tx, a)
}

// UpdateAccount updates all fields of an account, except for its ID and CreatedAt.
// It returns errorz.ErrNotFound if no account is found.
func (t *Tx) UpdateAccount(a *auth.Account) error {
	return updateAccount(t.ctx, t.store.newQuery(), t.tx, a)
}

// FindAccounts queries for accounts based on the provided filter.
// It returns an empty slice if no accounts are found.
func (t *Tx) FindAccounts(filter *auth.AccountFilter) ([]auth.Account, error) {
	return selectAccounts(t.ctx, t.store.newQuery(), t.tx, filter)
}
