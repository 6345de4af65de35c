package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/email/mailgun"
	"github.com/willemschots/accounts/internal/email/postmark"
	"github.com/willemschots/accounts/internal/krypto"
)

const (
	senderLog      = "log"
	senderPostmark = "postmark"
	senderMailgun  = "mailgun"
)

// envConfig is the raw configuration as found in the environment.
type envConfig struct {
	DBFile    string `env:"DB_FILE,default=accounts.db"`
	DBMigrate bool   `env:"DB_MIGRATE,default=true"`

	EncryptionKeys []string `env:"CRYPTO_ENCRYPTION_KEYS"`
	BlindIndexKey  string   `env:"CRYPTO_BLIND_INDEX_KEY"`

	WorkerTimeout time.Duration `env:"AUTH_WORKER_TIMEOUT,default=10s"`
	TokenExpiry   time.Duration `env:"AUTH_TOKEN_EXPIRY,default=24h"`

	EmailSender string `env:"EMAIL_SENDER,default=log"`
	EmailFrom   string `env:"EMAIL_FROM"`

	PostmarkAPIURL        string `env:"POSTMARK_API_URL,default=https://api.postmarkapp.com"`
	PostmarkServerToken   string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkMessageStream string `env:"POSTMARK_MESSAGE_STREAM,default=outbound"`

	MailgunBaseURL  string `env:"MAILGUN_BASE_URL,default=https://api.mailgun.net"`
	MailgunDomain   string `env:"MAILGUN_DOMAIN"`
	MailgunUsername string `env:"MAILGUN_USERNAME,default=api"`
	MailgunPassword string `env:"MAILGUN_PASSWORD"`
}

type dbConfig struct {
	file    string
	migrate bool
}

type cryptoConfig struct {
	encryptionKeys []krypto.Key
	blindIndexKey  krypto.Key
}

type emailConfig struct {
	sender   string
	from     email.Address
	postmark postmark.Settings
	mailgun  mailgun.Settings
}

// config is the configuration for the accounts command.
type config struct {
	db     dbConfig
	crypto cryptoConfig
	auth   auth.ServiceConfig
	email  emailConfig
}

// configFromEnv returns a config with values looked up in env. It falls
// back to default values for any missing optional variables.
//
// All invalid variables are reported at once, so that mistakes are
// caught ASAP.
func configFromEnv(ctx context.Context, env envconfig.Lookuper) (config, error) {
	var raw envConfig
	err := envconfig.ProcessWith(ctx, &raw, env)
	if err != nil {
		return config{}, fmt.Errorf("failed to process env variables: %w", err)
	}

	var (
		c    config
		errs []error
	)

	invalid := func(key string, err error) {
		errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
	}

	c.db.file = raw.DBFile
	if c.db.file == "" {
		invalid("DB_FILE", errors.New("empty"))
	}
	c.db.migrate = raw.DBMigrate

	if len(raw.EncryptionKeys) == 0 {
		invalid("CRYPTO_ENCRYPTION_KEYS", errors.New("at least one key is required"))
	} else if keys, err := krypto.ParseKeys(raw.EncryptionKeys); err != nil {
		invalid("CRYPTO_ENCRYPTION_KEYS", err)
	} else {
		c.crypto.encryptionKeys = keys
	}

	if key, err := krypto.ParseKey(raw.BlindIndexKey); err != nil {
		invalid("CRYPTO_BLIND_INDEX_KEY", err)
	} else {
		c.crypto.blindIndexKey = key
	}

	c.auth.WorkerTimeout = raw.WorkerTimeout
	if c.auth.WorkerTimeout <= 0 {
		invalid("AUTH_WORKER_TIMEOUT", fmt.Errorf("duration %s is not positive", c.auth.WorkerTimeout))
	}

	c.auth.TokenExpiry = raw.TokenExpiry
	if c.auth.TokenExpiry <= 0 {
		invalid("AUTH_TOKEN_EXPIRY", fmt.Errorf("duration %s is not positive", c.auth.TokenExpiry))
	}

	c.email.sender = raw.EmailSender
	switch c.email.sender {
	case senderLog, senderPostmark, senderMailgun:
	default:
		invalid("EMAIL_SENDER", fmt.Errorf("unknown sender %q", c.email.sender))
	}

	if addr, err := email.ParseAddress(raw.EmailFrom); err != nil {
		invalid("EMAIL_FROM", err)
	} else {
		c.email.from = addr
	}

	if u, err := parseAPIURL(raw.PostmarkAPIURL); err != nil {
		invalid("POSTMARK_API_URL", err)
	} else {
		c.email.postmark.APIURL = u
	}
	c.email.postmark.ServerToken = krypto.NewSecret(raw.PostmarkServerToken)
	c.email.postmark.MessageStream = raw.PostmarkMessageStream

	if c.email.sender == senderPostmark && c.email.postmark.ServerToken.IsEmpty() {
		invalid("POSTMARK_SERVER_TOKEN", errors.New("required when sending with postmark"))
	}

	if u, err := parseAPIURL(raw.MailgunBaseURL); err != nil {
		invalid("MAILGUN_BASE_URL", err)
	} else {
		c.email.mailgun.BaseURL = u
	}
	c.email.mailgun.Domain = raw.MailgunDomain
	c.email.mailgun.Username = raw.MailgunUsername
	c.email.mailgun.Password = krypto.NewSecret(raw.MailgunPassword)

	if c.email.sender == senderMailgun {
		if c.email.mailgun.Domain == "" {
			invalid("MAILGUN_DOMAIN", errors.New("required when sending with mailgun"))
		}
		if c.email.mailgun.Password.IsEmpty() {
			invalid("MAILGUN_PASSWORD", errors.New("required when sending with mailgun"))
		}
	}

	if len(errs) > 0 {
		return config{}, errors.Join(errs...)
	}

	return c, nil
}

func parseAPIURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q needs a scheme and host", raw)
	}

	return u, nil
}
