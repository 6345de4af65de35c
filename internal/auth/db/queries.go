package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
)

const accountColumns = `id, username, email_encrypted, password_hash, first_name, last_name, email_confirmed,
	pending_purpose, pending_email_encrypted, pending_code_hash, pending_created_at, created_at, updated_at`

// accountRow is an account as it is stored in the accounts table.
type accountRow struct {
	ID                    uuid.UUID         `db:"id"`
	Username              string            `db:"username"`
	EmailEncrypted        []byte            `db:"email_encrypted"`
	PasswordHash          krypto.Argon2Hash `db:"password_hash"`
	FirstName             string            `db:"first_name"`
	LastName              string            `db:"last_name"`
	EmailConfirmed        bool              `db:"email_confirmed"`
	PendingPurpose        sql.NullString    `db:"pending_purpose"`
	PendingEmailEncrypted []byte            `db:"pending_email_encrypted"`
	PendingCodeHash       sql.NullString    `db:"pending_code_hash"`
	PendingCreatedAt      sql.NullTime      `db:"pending_created_at"`
	CreatedAt             time.Time         `db:"created_at"`
	UpdatedAt             time.Time         `db:"updated_at"`
}

// pendingParams returns the values of the pending_* columns.
func pendingParams(p *auth.PendingChange) (purpose any, newEmail []byte, codeHash any, createdAt any) {
	if p == nil {
		return nil, nil, nil, nil
	}

	if p.NewEmail != "" {
		newEmail = []byte(p.NewEmail)
	}

	return string(p.Purpose), newEmail, p.CodeHash.String(), p.CreatedAt
}

func insertAccount(ctx context.Context, q *db.Query, tx *sqlx.Tx, a *auth.Account) error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	purpose, newEmail, codeHash, pendingCreatedAt := pendingParams(a.PendingChange)

	q.Unsafe(`INSERT INTO accounts (id, username, email_encrypted, email_blind_index, password_hash, first_name, last_name, email_confirmed,
		pending_purpose, pending_email_encrypted, pending_code_hash, pending_created_at, created_at, updated_at) VALUES (`)
	q.Params(a.ID, string(a.Username))
	q.Unsafe(`, `)
	q.ParamEncrypted([]byte(a.Email))
	q.Unsafe(`, `)
	q.ParamBlindIndex([]byte(a.Email))
	q.Unsafe(`, `)
	q.Params(a.PasswordHash.String(), a.FirstName, a.LastName, a.EmailConfirmed, purpose)
	q.Unsafe(`, `)
	q.ParamEncrypted(newEmail)
	q.Unsafe(`, `)
	q.Params(codeHash, pendingCreatedAt, a.CreatedAt, a.UpdatedAt)
	q.Unsafe(`)`)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, s, params...)
	if err != nil {
		return mapAccountErr(err)
	}

	return nil
}

func updateAccount(ctx context.Context, q *db.Query, tx *sqlx.Tx, a *auth.Account) error {
	purpose, newEmail, codeHash, pendingCreatedAt := pendingParams(a.PendingChange)

	q.Unsafe(`UPDATE accounts SET `)

	q.Unsafe(`username = `)
	q.Param(string(a.Username))

	q.Unsafe(`, email_encrypted = `)
	q.ParamEncrypted([]byte(a.Email))

	q.Unsafe(`, email_blind_index = `)
	q.ParamBlindIndex([]byte(a.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(a.PasswordHash.String())

	q.Unsafe(`, first_name = `)
	q.Param(a.FirstName)

	q.Unsafe(`, last_name = `)
	q.Param(a.LastName)

	q.Unsafe(`, email_confirmed = `)
	q.Param(a.EmailConfirmed)

	q.Unsafe(`, pending_purpose = `)
	q.Param(purpose)

	q.Unsafe(`, pending_email_encrypted = `)
	q.ParamEncrypted(newEmail)

	q.Unsafe(`, pending_code_hash = `)
	q.Param(codeHash)

	q.Unsafe(`, pending_created_at = `)
	q.Param(pendingCreatedAt)

	q.Unsafe(`, updated_at = `)
	q.Param(a.UpdatedAt)

	q.Unsafe(` WHERE id = `)
	q.Param(a.ID)

	s, params, err := q.Get()
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, s, params...)
	if err != nil {
		return mapAccountErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("account not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectAccounts(ctx context.Context, q *db.Query, tx *sqlx.Tx, f *auth.AccountFilter) ([]auth.Account, error) {
	q.Unsafe(`SELECT ` + accountColumns + ` FROM accounts WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		q.Params(anySlice(f.IDs)...)
		q.Unsafe(`) `)
	}

	if len(f.Usernames) > 0 {
		q.Unsafe(`AND username IN (`)
		for i, u := range f.Usernames {
			if i > 0 {
				q.Unsafe(`, `)
			}
			q.Param(string(u))
		}
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email_blind_index IN (`)
		for i, e := range f.Emails {
			if i > 0 {
				q.Unsafe(`, `)
			}
			q.ParamBlindIndex([]byte(e))
		}
		q.Unsafe(`) `)
	}

	q.Unsafe(`ORDER BY username ASC`)

	s, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryxContext(ctx, s, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]auth.Account, 0)
	for rows.Next() {
		var row accountRow
		err := rows.StructScan(&row)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		a, err := row.toAccount(q)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func (r accountRow) toAccount(q *db.Query) (auth.Account, error) {
	a := auth.Account{
		ID:             r.ID,
		Username:       auth.Username(r.Username),
		PasswordHash:   r.PasswordHash,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		EmailConfirmed: r.EmailConfirmed,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	emailBytes, err := q.Decrypt(r.EmailEncrypted)
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to decrypt email: %w", err)
	}

	a.Email, err = email.ParseAddress(string(emailBytes))
	if err != nil {
		return auth.Account{}, err
	}

	if !r.PendingPurpose.Valid {
		return a, nil
	}

	pending := &auth.PendingChange{
		Purpose:   auth.Purpose(r.PendingPurpose.String),
		CreatedAt: r.PendingCreatedAt.Time,
	}

	pending.CodeHash, err = krypto.ParseArgon2Hash(r.PendingCodeHash.String)
	if err != nil {
		return auth.Account{}, err
	}

	newEmail, err := q.Decrypt(r.PendingEmailEncrypted)
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to decrypt pending email: %w", err)
	}

	if newEmail != nil {
		pending.NewEmail, err = email.ParseAddress(string(newEmail))
		if err != nil {
			return auth.Account{}, err
		}
	}

	a.PendingChange = pending
	return a, nil
}

// mapAccountErr maps database errors, and names unique violations
// after the account fields instead of the columns.
func mapAccountErr(err error) error {
	err = errorz.MapDBErr(err)

	var k errorz.Keyed
	if errors.As(err, &k) && k.Key == "email_blind_index" {
		return errorz.Keyed{Key: "email", Err: k.Err}
	}

	return err
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
