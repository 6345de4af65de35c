package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/willemschots/accounts/assets"
	"github.com/willemschots/accounts/internal"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db/migrate"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
)

// setup is the annotation that tells what a command needs before it runs.
const (
	setupKey        = "setup"
	setupNone       = "none"
	setupUnmigrated = "unmigrated"
)

// cli builds the commands and keeps the state they share.
type cli struct {
	logger *slog.Logger
	env    envconfig.Lookuper
	prompt *prompter
	out    io.Writer

	// started is set once a command is about to run, everything before
	// that is a usage error.
	started bool
	app     *app
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "accounts",
		Short:         "Manage user accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.started = true

			setup := cmd.Annotations[setupKey]
			if setup == setupNone {
				return nil
			}

			cfg, err := configFromEnv(cmd.Context(), c.env)
			if err != nil {
				return err
			}

			c.app, err = newApp(cmd.Context(), c.logger, cfg, setup != setupUnmigrated)
			return err
		},
	}

	root.AddCommand(
		c.versionCmd(),
		c.migrateCmd(),
		c.registerCmd(),
		c.loginCmd(),
		c.confirmCmd(),
		c.resendConfirmationCmd(),
		c.changeEmailCmd(),
		c.forgotPasswordCmd(),
		c.resetPasswordCmd(),
		c.changePasswordCmd(),
		c.showCmd(),
		c.editCmd(),
	)

	return root
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{setupKey: setupNone},
		RunE: func(_ *cobra.Command, _ []string) error {
			b := internal.CurrentBuild
			fmt.Fprintf(c.out, "revision: %s\n", b.Revision)
			fmt.Fprintf(c.out, "revision time: %s\n", b.RevisionTime)
			fmt.Fprintf(c.out, "local modified: %t\n", b.LocalModified)
			return nil
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "migrate",
		Short:       "Apply pending database migrations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{setupKey: setupUnmigrated},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran, err := migrate.RunFS(cmd.Context(), c.app.db.DB, assets.MigrationFS, c.logger)
			if err != nil {
				return err
			}

			for _, m := range ran {
				fmt.Fprintf(c.out, "%d: %s\n", m.Version, m.Filename)
			}

			version, err := migrate.Version(cmd.Context(), c.app.db.DB, assets.MigrationFS)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "database is at version %d\n", version)
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var username, addr, firstName, lastName string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account, the password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			reg := auth.Registration{
				Username:  parseField(&errs, "username", username, auth.ParseUsername),
				Email:     parseField(&errs, "email", addr, email.ParseAddress),
				FirstName: firstName,
				LastName:  lastName,
			}
			if len(errs) > 0 {
				return errs
			}

			var err error
			reg.Password, err = c.prompt.password("Password", "password")
			if err != nil {
				return err
			}

			acc, err := c.app.svc.Register(cmd.Context(), reg)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Registered %s, a confirmation code was sent to %s.\n", acc.Username, acc.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the new account")
	cmd.Flags().StringVar(&addr, "email", "", "email address of the new account")
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")

	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check the credentials of an account, the password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			creds := auth.Credentials{
				Username: parseField(&errs, "username", username, auth.ParseUsername),
			}
			if len(errs) > 0 {
				return errs
			}

			var err error
			creds.Password, err = c.prompt.password("Password", "password")
			if err != nil {
				return err
			}

			acc, err := c.app.svc.Authenticate(cmd.Context(), creds)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Authenticated as %s.\n", acc.Username)
			if !acc.EmailConfirmed {
				fmt.Fprintln(c.out, "Your email address is not confirmed yet.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")

	return cmd
}

func (c *cli) confirmCmd() *cobra.Command {
	var username, code string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm an email address with the emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			conf := auth.Confirmation{
				Username: parseField(&errs, "username", username, auth.ParseUsername),
				Code:     parseField(&errs, "code", code, krypto.ParseToken),
			}
			if len(errs) > 0 {
				return errs
			}

			acc, err := c.app.svc.Confirm(cmd.Context(), conf)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Confirmed %s for %s.\n", acc.Email, acc.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")
	cmd.Flags().StringVar(&code, "code", "", "the emailed code")

	return cmd
}

func (c *cli) resendConfirmationCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "resend-confirmation",
		Short: "Email a new confirmation code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			u := parseField(&errs, "username", username, auth.ParseUsername)
			if len(errs) > 0 {
				return errs
			}

			err := c.app.svc.ResendConfirmation(cmd.Context(), u)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, "If a confirmation is pending, a new code was sent.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")

	return cmd
}

func (c *cli) changeEmailCmd() *cobra.Command {
	var username, addr string

	cmd := &cobra.Command{
		Use:   "change-email",
		Short: "Request a change of email address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			u := parseField(&errs, "username", username, auth.ParseUsername)
			newEmail := parseField(&errs, "email", addr, email.ParseAddress)
			if len(errs) > 0 {
				return errs
			}

			acc, err := c.app.svc.RequestEmailChange(cmd.Context(), u, newEmail)
			if err != nil {
				return err
			}

			if newEmail == acc.Email {
				fmt.Fprintf(c.out, "%s already uses %s.\n", acc.Username, acc.Email)
				return nil
			}

			fmt.Fprintf(c.out, "A confirmation code was sent to %s.\n", newEmail)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")
	cmd.Flags().StringVar(&addr, "email", "", "the new email address")

	return cmd
}

func (c *cli) forgotPasswordCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a password reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			a := parseField(&errs, "email", addr, email.ParseAddress)
			if len(errs) > 0 {
				return errs
			}

			c.app.svc.RequestPasswordReset(cmd.Context(), a)

			fmt.Fprintf(c.out, "If an account uses %s, a reset code was sent to it.\n", a)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "email", "", "email address of the account")

	return cmd
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var username, code string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Reset a password with the emailed code, the new password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			r := auth.PasswordReset{
				Username: parseField(&errs, "username", username, auth.ParseUsername),
				Code:     parseField(&errs, "code", code, krypto.ParseToken),
			}
			if len(errs) > 0 {
				return errs
			}

			var err error
			r.Password, err = c.prompt.password("New password", "password")
			if err != nil {
				return err
			}

			acc, err := c.app.svc.ResetPassword(cmd.Context(), r)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Password of %s was reset.\n", acc.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")
	cmd.Flags().StringVar(&code, "code", "", "the emailed code")

	return cmd
}

func (c *cli) changePasswordCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change a password, the current and new password are read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			u := parseField(&errs, "username", username, auth.ParseUsername)
			if len(errs) > 0 {
				return errs
			}

			var (
				change auth.PasswordChange
				err    error
			)
			change.Current, err = c.prompt.password("Current password", "current password")
			if err != nil {
				return err
			}

			change.New, err = c.prompt.password("New password", "new password")
			if err != nil {
				return err
			}

			acc, err := c.app.svc.ChangePassword(cmd.Context(), u, change)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Password of %s was changed.\n", acc.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")

	return cmd
}

func (c *cli) showCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			u := parseField(&errs, "username", username, auth.ParseUsername)
			if len(errs) > 0 {
				return errs
			}

			acc, err := c.app.svc.GetAccount(cmd.Context(), u)
			if err != nil {
				return err
			}

			c.printAccount(acc)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")

	return cmd
}

func (c *cli) editCmd() *cobra.Command {
	var username, newUsername, firstName, lastName string

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit the username and names of an account, omitted flags are kept as is",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var errs errorz.InvalidInput
			u := parseField(&errs, "username", username, auth.ParseUsername)

			var renamed auth.Username
			if cmd.Flags().Changed("new-username") {
				renamed = parseField(&errs, "new-username", newUsername, auth.ParseUsername)
			}

			if len(errs) > 0 {
				return errs
			}

			acc, err := c.app.svc.GetAccount(cmd.Context(), u)
			if err != nil {
				return err
			}

			update := auth.ProfileUpdate{
				Username:  acc.Username,
				FirstName: acc.FirstName,
				LastName:  acc.LastName,
			}

			if renamed != "" {
				update.Username = renamed
			}
			if cmd.Flags().Changed("first-name") {
				update.FirstName = firstName
			}
			if cmd.Flags().Changed("last-name") {
				update.LastName = lastName
			}

			acc, err = c.app.svc.UpdateProfile(cmd.Context(), u, update)
			if err != nil {
				return err
			}

			c.printAccount(acc)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username of the account")
	cmd.Flags().StringVar(&newUsername, "new-username", "", "new username")
	cmd.Flags().StringVar(&firstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "new last name")

	return cmd
}

func (c *cli) printAccount(acc auth.Account) {
	fmt.Fprintf(c.out, "id: %s\n", acc.ID)
	fmt.Fprintf(c.out, "username: %s\n", acc.Username)
	fmt.Fprintf(c.out, "email: %s\n", acc.Email)
	fmt.Fprintf(c.out, "email confirmed: %t\n", acc.EmailConfirmed)
	fmt.Fprintf(c.out, "first name: %s\n", acc.FirstName)
	fmt.Fprintf(c.out, "last name: %s\n", acc.LastName)

	if acc.PendingChange != nil {
		switch acc.PendingChange.Purpose {
		case auth.PurposeConfirmEmail:
			fmt.Fprintf(c.out, "pending: %s of %s\n", acc.PendingChange.Purpose, acc.PendingChange.NewEmail)
		default:
			fmt.Fprintf(c.out, "pending: %s\n", acc.PendingChange.Purpose)
		}
	}

	fmt.Fprintf(c.out, "created at: %s\n", acc.CreatedAt)
	fmt.Fprintf(c.out, "updated at: %s\n", acc.UpdatedAt)
}

// parseField parses raw and adds a keyed error to errs if that fails.
func parseField[T any](errs *errorz.InvalidInput, key, raw string, parse func(string) (T, error)) T {
	v, err := parse(raw)
	if err != nil {
		*errs = append(*errs, errorz.Keyed{Key: key, Err: err})
	}
	return v
}
