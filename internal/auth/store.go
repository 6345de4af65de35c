package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/willemschots/accounts/internal/email"
)

// AccountFilter is used filter accounts.
// Returned accounts must match all the provided fields.
// If a field is empty, it's ignored.
type AccountFilter struct {
	IDs       []uuid.UUID
	Usernames []Username
	Emails    []email.Address
}

// Store provides access to the account store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
//
// Create and Update report a taken username or email as an
// errorz.Keyed error with the key "username" or "email" that wraps
// errorz.ErrConstraintViolated.
type Tx interface {
	Commit() error
	Rollback() error

	CreateAccount(a *Account) error
	UpdateAccount(a *Account) error
	FindAccounts(filter *AccountFilter) ([]Account, error)
}
