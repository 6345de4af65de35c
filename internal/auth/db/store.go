package db

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/krypto"
)

// Store is responsible for interacting with a database.
//
// Email addresses are stored encrypted. Lookups and uniqueness of email
// addresses rely on a blind index.
type Store struct {
	db            *sqlx.DB
	encryptor     *krypto.Encryptor
	blindIndexKey krypto.Key
}

// New creates a new Store.
func New(db *sqlx.DB, encryptor *krypto.Encryptor, blindIndexKey krypto.Key) *Store {
	return &Store{
		db:            db,
		encryptor:     encryptor,
		blindIndexKey: blindIndexKey,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		ctx:   ctx,
		tx:    tx,
		store: s,
	}, nil
}

func (s *Store) newQuery() *db.Query {
	return &db.Query{
		Encryptor:     s.encryptor,
		BlindIndexKey: s.blindIndexKey,
	}
}
