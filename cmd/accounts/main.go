package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/willemschots/accounts/internal"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/errorz"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, envconfig.OsLookuper()))
}

// run runs the command in args. Results are written to stdout, logs
// and error messages to stderr.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, env envconfig.Lookuper) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	c := &cli{
		logger: logger,
		env:    env,
		prompt: newPrompter(stdin, stdout),
		out:    stdout,
	}

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	// We need to run two tasks concurrently:
	// - Running the command.
	// - Waiting for a signal, the command is given the chance to finish.
	done := make(chan struct{})

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)

		logger.Debug("running command",
			"buildRevision", internal.CurrentBuild.Revision,
			"buildRevisionTime", internal.CurrentBuild.RevisionTime,
			"buildLocalModified", internal.CurrentBuild.LocalModified,
		)

		return root.ExecuteContext(gCtx)
	})

	g.Go(func() error {
		select {
		case <-done:
		case <-ctx.Done():
			logger.Info("received stop signal, waiting for command to finish")
		}
		return nil
	})

	err := g.Wait()

	if c.app != nil {
		closeErr := c.app.close()
		if closeErr != nil {
			logger.Error("failed to close app", "error", closeErr)
			if err == nil {
				return 1
			}
		}
	}

	if err != nil {
		if !c.started {
			fmt.Fprintf(stderr, "%v\nRun 'accounts --help' for usage.\n", err)
			return 2
		}

		msg, expected := userMessage(err)
		if !expected {
			logger.Error("command failed", "error", err)
		}

		fmt.Fprintln(stderr, "error:", msg)
		return 1
	}

	return 0
}

// userMessage translates err into a message that is safe to show. It
// reports false for errors that are not caused by the input.
//
// Missing accounts and wrong codes share a message, as do unknown
// usernames and wrong passwords.
func userMessage(err error) (string, bool) {
	var invalid errorz.InvalidInput

	switch {
	case errors.Is(err, auth.ErrAuthFailure):
		return "incorrect credentials", true
	case errors.Is(err, errorz.ErrNotFound):
		return "unknown account, or the code is invalid or expired", true
	case errors.Is(err, auth.ErrDuplicate), errors.Is(err, auth.ErrConflict):
		key, ok := errorz.KeyOf(err)
		if !ok {
			key = "value"
		}
		return key + " is already in use", true
	case errors.As(err, &invalid):
		return invalid.Error(), true
	default:
		return "something went wrong, see the logs for details", false
	}
}
