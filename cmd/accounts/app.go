package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/willemschots/accounts/assets"
	"github.com/willemschots/accounts/internal/auth"
	authdb "github.com/willemschots/accounts/internal/auth/db"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/email/mailgun"
	"github.com/willemschots/accounts/internal/email/postmark"
	"github.com/willemschots/accounts/internal/email/view"
	"github.com/willemschots/accounts/internal/krypto"
)

// httpClientTimeout bounds every request to an email API.
const httpClientTimeout = 10 * time.Second

// app holds the dependencies of the commands that work with accounts.
type app struct {
	logger *slog.Logger
	cfg    config
	db     *sqlx.DB
	svc    *auth.Service
}

// newApp opens the database and builds the account service. Migrations are
// applied first if autoMigrate is set and the config allows it.
func newApp(ctx context.Context, logger *slog.Logger, cfg config, autoMigrate bool) (*app, error) {
	sqlDB, err := db.OpenSQLite(cfg.db.file)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{
		logger: logger,
		cfg:    cfg,
		db:     sqlDB,
	}

	if autoMigrate && cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)
		_, err = migrate.RunFS(ctx, sqlDB.DB, assets.MigrationFS, logger)
		if err != nil {
			return nil, errors.Join(err, sqlDB.Close())
		}
	}

	encryptor, err := krypto.NewEncryptor(cfg.crypto.encryptionKeys)
	if err != nil {
		return nil, errors.Join(err, sqlDB.Close())
	}

	emailSvc := email.NewService(view.NewFSRenderer(assets.EmailFS), a.newSender(), cfg.email.from)

	a.svc, err = auth.NewService(
		authdb.New(sqlDB, encryptor, cfg.crypto.blindIndexKey),
		emailSvc,
		func(err error) {
			logger.Error("error in auth worker", "error", err)
		},
		cfg.auth,
	)
	if err != nil {
		return nil, errors.Join(err, sqlDB.Close())
	}

	return a, nil
}

func (a *app) newSender() email.Sender {
	client := &http.Client{Timeout: httpClientTimeout}

	switch a.cfg.email.sender {
	case senderPostmark:
		return postmark.NewSender(client, a.cfg.email.postmark)
	case senderMailgun:
		return mailgun.NewSender(client, a.cfg.email.mailgun)
	default:
		return email.NewLogSender(a.logger)
	}
}

// close waits for the workers of the service to finish and closes the database.
func (a *app) close() error {
	if a.svc != nil {
		a.svc.Wait()
	}

	return a.db.Close()
}
