package main

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

func requiredEnv() map[string]string {
	return map[string]string{
		"CRYPTO_ENCRYPTION_KEYS": "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d",
		"CRYPTO_BLIND_INDEX_KEY": "b61115eeb1bdf0847f1d7ea978c7da71e3b31361f7450bc8aa12566a16b7b03f",
		"EMAIL_FROM":             "accounts@example.com",
	}
}

func newConfig(mf func(*config)) config {
	c := config{
		db: dbConfig{
			file:    "accounts.db",
			migrate: true,
		},
		crypto: cryptoConfig{
			encryptionKeys: []krypto.Key{
				must(krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d")),
			},
			blindIndexKey: must(krypto.ParseKey("b61115eeb1bdf0847f1d7ea978c7da71e3b31361f7450bc8aa12566a16b7b03f")),
		},
		email: emailConfig{
			sender: senderLog,
			from:   must(email.ParseAddress("accounts@example.com")),
		},
	}
	c.auth.WorkerTimeout = 10 * time.Second
	c.auth.TokenExpiry = 24 * time.Hour
	c.email.postmark.APIURL = must(url.Parse("https://api.postmarkapp.com"))
	c.email.postmark.ServerToken = krypto.NewSecret("")
	c.email.postmark.MessageStream = "outbound"
	c.email.mailgun.BaseURL = must(url.Parse("https://api.mailgun.net"))
	c.email.mailgun.Username = "api"
	c.email.mailgun.Password = krypto.NewSecret("")

	if mf != nil {
		mf(&c)
	}
	return c
}

// envWith returns the required env variables, extended with kv pairs.
func envWith(kv ...string) map[string]string {
	env := requiredEnv()
	for i := 0; i+1 < len(kv); i += 2 {
		env[kv[i]] = kv[i+1]
	}
	return env
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("ok, uses defaults for non-required env variables", func(t *testing.T) {
		want := newConfig(nil)
		got, err := configFromEnv(context.Background(), envconfig.MapLookuper(requiredEnv()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Errorf("got\n%+v\nwant\n%+v", got, want)
		}
	})

	valid := map[string]struct {
		env map[string]string
		mf  func(*config) // modify default config to create wanted config.
	}{
		"ok, non-default DB_FILE": {
			env: envWith("DB_FILE", "test.db"),
			mf:  func(c *config) { c.db.file = "test.db" },
		},
		"ok, non-default DB_MIGRATE": {
			env: envWith("DB_MIGRATE", "false"),
			mf:  func(c *config) { c.db.migrate = false },
		},
		"ok, multiple CRYPTO_ENCRYPTION_KEYS": {
			env: envWith("CRYPTO_ENCRYPTION_KEYS", "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d,cf55b868d8c7a640265365910093113edce9b6c9226f3bd7c87987d23062d421"),
			mf: func(c *config) {
				c.crypto.encryptionKeys = []krypto.Key{
					must(krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d")),
					must(krypto.ParseKey("cf55b868d8c7a640265365910093113edce9b6c9226f3bd7c87987d23062d421")),
				}
			},
		},
		"ok, non-default AUTH_WORKER_TIMEOUT": {
			env: envWith("AUTH_WORKER_TIMEOUT", "42s"),
			mf:  func(c *config) { c.auth.WorkerTimeout = 42 * time.Second },
		},
		"ok, non-default AUTH_TOKEN_EXPIRY": {
			env: envWith("AUTH_TOKEN_EXPIRY", "51m"),
			mf:  func(c *config) { c.auth.TokenExpiry = 51 * time.Minute },
		},
		"ok, postmark sender": {
			env: envWith("EMAIL_SENDER", "postmark", "POSTMARK_SERVER_TOKEN", "testToken", "POSTMARK_MESSAGE_STREAM", "other_stream"),
			mf: func(c *config) {
				c.email.sender = senderPostmark
				c.email.postmark.ServerToken = krypto.NewSecret("testToken")
				c.email.postmark.MessageStream = "other_stream"
			},
		},
		"ok, non-default POSTMARK_API_URL": {
			env: envWith("POSTMARK_API_URL", "https://example.com"),
			mf: func(c *config) {
				c.email.postmark.APIURL = must(url.Parse("https://example.com"))
			},
		},
		"ok, mailgun sender": {
			env: envWith(
				"EMAIL_SENDER", "mailgun",
				"MAILGUN_BASE_URL", "https://api.eu.mailgun.net",
				"MAILGUN_DOMAIN", "mg.example.com",
				"MAILGUN_USERNAME", "user",
				"MAILGUN_PASSWORD", "testPassword",
			),
			mf: func(c *config) {
				c.email.sender = senderMailgun
				c.email.mailgun.BaseURL = must(url.Parse("https://api.eu.mailgun.net"))
				c.email.mailgun.Domain = "mg.example.com"
				c.email.mailgun.Username = "user"
				c.email.mailgun.Password = krypto.NewSecret("testPassword")
			},
		},
		"ok, other EMAIL_FROM": {
			env: envWith("EMAIL_FROM", "Test@Example.com"),
			mf: func(c *config) {
				c.email.from = must(email.ParseAddress("test@example.com"))
			},
		},
	}

	for name, tc := range valid {
		t.Run(name, func(t *testing.T) {
			want := newConfig(tc.mf)
			got, err := configFromEnv(context.Background(), envconfig.MapLookuper(tc.env))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(got, want) {
				t.Errorf("got\n%+v\nwant\n%+v", got, want)
			}
		})
	}

	invalid := map[string]struct {
		key string
		val string
	}{
		"fail, empty CRYPTO_ENCRYPTION_KEYS":    {"CRYPTO_ENCRYPTION_KEYS", ""},
		"fail, invalid CRYPTO_ENCRYPTION_KEYS":  {"CRYPTO_ENCRYPTION_KEYS", "abc"},
		"fail, invalid CRYPTO_BLIND_INDEX_KEY":  {"CRYPTO_BLIND_INDEX_KEY", "abc"},
		"fail, negative AUTH_WORKER_TIMEOUT":    {"AUTH_WORKER_TIMEOUT", "-1ms"},
		"fail, zero AUTH_TOKEN_EXPIRY":          {"AUTH_TOKEN_EXPIRY", "0s"},
		"fail, unknown EMAIL_SENDER":            {"EMAIL_SENDER", "pigeon"},
		"fail, invalid EMAIL_FROM":              {"EMAIL_FROM", "@@"},
		"fail, invalid POSTMARK_API_URL":        {"POSTMARK_API_URL", "not-a-url"},
		"fail, invalid MAILGUN_BASE_URL":        {"MAILGUN_BASE_URL", "/just-a-path"},
		"fail, postmark without server token":   {"EMAIL_SENDER", "postmark"},
		"fail, mailgun without domain/password": {"EMAIL_SENDER", "mailgun"},
	}

	for name, tc := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := configFromEnv(context.Background(), envconfig.MapLookuper(envWith(tc.key, tc.val)))
			if err == nil {
				t.Fatal("expected error, got <nil>")
			}
		})
	}

	for key := range requiredEnv() {
		t.Run(fmt.Sprintf("fail, env variable %s not set", key), func(t *testing.T) {
			// set all required env variables except the one being tested.
			env := requiredEnv()
			delete(env, key)

			_, err := configFromEnv(context.Background(), envconfig.MapLookuper(env))
			if err == nil {
				t.Fatal("expected error, got <nil>")
			}

			// Check that the error message contains the missing env variable.
			// These errors are immediately logged, so I'm fine comparing on a string level.
			msg := err.Error()
			if !strings.Contains(msg, key) {
				t.Errorf("expected error message to mention %s, got %s", key, msg)
			}
		})
	}

	t.Run("fail, multiple invalid env variables", func(t *testing.T) {
		env := envWith("AUTH_WORKER_TIMEOUT", "-1ms", "EMAIL_SENDER", "mailgun")

		_, err := configFromEnv(context.Background(), envconfig.MapLookuper(env))
		if err == nil {
			t.Fatal("expected error, got <nil>")
		}

		// Check that the error message contains all invalid env variables.
		// Again, these errors are immediately logged, so I'm fine comparing on a string level.
		msg := err.Error()
		for _, key := range []string{"AUTH_WORKER_TIMEOUT", "MAILGUN_DOMAIN", "MAILGUN_PASSWORD"} {
			if !strings.Contains(msg, key) {
				t.Errorf("expected error message to mention %s, got %s", key, msg)
			}
		}
	})
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
