// Package migrate applies the SQL migrations of the app using goose.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
)

// Migration is a migration that was ran.
type Migration struct {
	Version  int64
	Filename string
	Duration time.Duration
}

// RunFS applies all pending migrations found in the root of fileSys. It
// returns the migrations that were ran, if no migrations were ran it
// returns an empty slice.
//
// Migration files are goose SQL files: "<version>_<name>.sql" with
// "-- +goose Up" and "-- +goose Down" annotations.
func RunFS(ctx context.Context, db *sql.DB, fileSys fs.FS, logger *slog.Logger) ([]Migration, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fileSys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := p.Up(ctx)

	// On failure the migrations that did apply are only reported in the partial error.
	var pErr *goose.PartialError
	if errors.As(err, &pErr) {
		results = pErr.Applied
	}

	ran := make([]Migration, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			continue
		}

		m := Migration{
			Version:  r.Source.Version,
			Filename: r.Source.Path,
			Duration: r.Duration,
		}

		logger.InfoContext(ctx, "ran migration", "version", m.Version, "filename", m.Filename, "duration", m.Duration)
		ran = append(ran, m)
	}

	if err != nil {
		return ran, fmt.Errorf("failed to run migrations: %w", err)
	}

	return ran, nil
}

// Version returns the version of the latest migration applied to db.
// It returns 0 if no migrations were applied.
func Version(ctx context.Context, db *sql.DB, fileSys fs.FS) (int64, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fileSys)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	v, err := p.GetDBVersion(ctx)
	if err != nil {
		if errors.Is(err, goose.ErrNoCurrentVersion) {
			return 0, nil
		}
		return 0, err
	}

	return v, nil
}
