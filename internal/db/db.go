package db

import (
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// To make SQLite work well with our app, we need a few options:
// - WAL Mode so that reads and writes don't block eachother.
// - A busy timeout, specifying the duration a connection will wait for a lock.
// - Foreign keys are enforced.
// - Immediate transactions, so a transaction takes the write lock when it begins.
//
// See this comment for more information:
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
const options = "?_foreign_keys=on&_journal_mode=wal&_busy_timeout=5000&_txlock=immediate"

// OpenSQLite opens the SQLite database in dbFile for reading and writing.
//
// A single connection is used, so every transaction is serialized. This
// also means that an in-memory database (":memory:") behaves like a
// regular database for as long as it is open.
func OpenSQLite(dbFile string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", dbFile+options)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// don't close this connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return db, nil
}
