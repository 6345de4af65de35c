package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
)

// Names of the email templates sent by the Service.
const (
	TemplateRegistration  = "account-registration"
	TemplateEmailChange   = "email-change"
	TemplatePasswordReset = "password-reset"
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// EmailData is the data every email template is rendered with.
type EmailData struct {
	Username Username
	// Email is the address the code is sent to.
	Email email.Address
	Code  krypto.Token
	// Expiry is the validity of the code in words, e.g. "1 day".
	Expiry string
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// TokenExpiry is the duration an emailed code is valid.
	TokenExpiry time.Duration
}

// Service is the type that provides the main rules for
// accounts.
type Service struct {
	store      Store
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords and codes when no account was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s Store, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := tok.Hash()
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Register creates a new, unconfirmed, account. A confirmation code for
// the email address is sent in a separate goroutine, failing to send it
// does not fail the registration.
//
// If the username or email is already in use, an errorz.Keyed error
// wrapping ErrDuplicate is returned.
func (s *Service) Register(ctx context.Context, r Registration) (Account, error) {
	pwdHash, err := r.Password.Hash()
	if err != nil {
		return Account{}, err
	}

	code, pending, err := s.newPendingChange(PurposeConfirmEmail, r.Email)
	if err != nil {
		return Account{}, err
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return Account{}, err
	}

	now := s.NowFunc()
	acc := Account{
		ID:             id,
		Username:       r.Username,
		Email:          r.Email,
		PasswordHash:   pwdHash,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		EmailConfirmed: false,
		PendingChange:  pending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.inTx(ctx, func(tx Tx) error {
		_, found, txErr := findOne(tx, &AccountFilter{Usernames: []Username{acc.Username}})
		if txErr != nil {
			return txErr
		}

		if found {
			return errorz.Keyed{Key: "username", Err: ErrDuplicate}
		}

		_, found, txErr = findOne(tx, &AccountFilter{Emails: []email.Address{acc.Email}})
		if txErr != nil {
			return txErr
		}

		if found {
			return errorz.Keyed{Key: "email", Err: ErrDuplicate}
		}

		// The unique indexes of the store catch what the checks above can't.
		return mapUnique(tx.CreateAccount(&acc), ErrDuplicate)
	})
	if err != nil {
		return Account{}, err
	}

	s.sendAsync(TemplateRegistration, acc.Email, s.emailData(acc, acc.Email, code))

	return acc, nil
}

// Authenticate checks if the provided credentials are valid, and returns the
// matching account if they are. Accounts with an unconfirmed email can
// authenticate.
//
// An AuthFailure is returned if the username is unknown or the password
// does not match.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (Account, error) {
	var acc Account
	err := s.inTx(ctx, func(tx Tx) error {
		var (
			found bool
			txErr error
		)
		acc, found, txErr = findOne(tx, &AccountFilter{Usernames: []Username{c.Username}})
		if txErr != nil {
			return txErr
		}

		if !found {
			// Even if no account is found we compare to a hash to prevent timing differences
			// that could result in user enumeration attacks.
			_ = c.Password.Match(s.comparisonHash)
			return AuthFailure{Kind: AuthNotFound}
		}

		if !c.Password.Match(acc.PasswordHash) {
			return AuthFailure{Kind: AuthBadPassword}
		}

		return nil
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// RequestEmailChange starts a change of the email address of an account.
// The current email address remains in use until the code sent to
// newEmail is confirmed.
//
// Requesting the current email address is a no-op. If newEmail is in use by
// another account an errorz.Keyed error wrapping ErrConflict is returned.
func (s *Service) RequestEmailChange(ctx context.Context, username Username, newEmail email.Address) (Account, error) {
	code, pending, err := s.newPendingChange(PurposeConfirmEmail, newEmail)
	if err != nil {
		return Account{}, err
	}

	var (
		acc     Account
		changed bool
	)
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = findExisting(tx, username)
		if txErr != nil {
			return txErr
		}

		if acc.Email == newEmail {
			return nil
		}

		_, found, txErr := findOne(tx, &AccountFilter{Emails: []email.Address{newEmail}})
		if txErr != nil {
			return txErr
		}

		if found {
			return errorz.Keyed{Key: "email", Err: ErrConflict}
		}

		acc.PendingChange = pending
		acc.EmailConfirmed = false
		acc.UpdatedAt = s.NowFunc()

		txErr = tx.UpdateAccount(&acc)
		if txErr != nil {
			return mapUnique(txErr, ErrConflict)
		}

		changed = true
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	if changed {
		s.sendAsync(TemplateEmailChange, newEmail, s.emailData(acc, newEmail, code))
	}

	return acc, nil
}

// Confirm redeems the code of a pending email confirmation. On success the
// account uses the confirmed email address.
//
// errorz.ErrNotFound is returned if there is no such account, it has no
// pending confirmation, or the code is expired or does not match.
func (s *Service) Confirm(ctx context.Context, c Confirmation) (Account, error) {
	var acc Account
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = s.findRedeemable(tx, c.Username, PurposeConfirmEmail, c.Code)
		if txErr != nil {
			return txErr
		}

		acc.Email = acc.PendingChange.NewEmail
		acc.PendingChange = nil
		acc.EmailConfirmed = true
		acc.UpdatedAt = s.NowFunc()

		// Another account may have claimed the email since the change was requested.
		return mapUnique(tx.UpdateAccount(&acc), ErrConflict)
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// RequestPasswordReset requests a password reset for the account with the provided email address.
// The work is done in a separate goroutine and no output is returned, so the
// caller can't tell whether an account with the email address exists.
func (s *Service) RequestPasswordReset(_ context.Context, addr email.Address) {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   accounts could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, addr)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	code, pending, err := s.newPendingChange(PurposeResetPassword, "")
	if err != nil {
		return err
	}

	var (
		acc   Account
		found bool
	)
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, found, txErr = findOne(tx, &AccountFilter{Emails: []email.Address{addr}})
		if txErr != nil || !found {
			return txErr
		}

		// A reset replaces any other pending change.
		acc.PendingChange = pending
		acc.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return err
	}

	if !found {
		return nil
	}

	// Send the email.
	// This could fail independently of the transaction. This is an acceptable
	// risk for now. If the user has not received the email, they can always request a reset again.
	err = s.emailer.Send(ctx, TemplatePasswordReset, acc.Email, s.emailData(acc, acc.Email, code))
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", TemplatePasswordReset, err)
	}

	return nil
}

// ResetPassword redeems the code of a pending password reset and sets the
// new password. The caller is responsible for ending sessions of the account.
//
// errorz.ErrNotFound is returned if there is no such account, it has no
// pending reset, or the code is expired or does not match.
func (s *Service) ResetPassword(ctx context.Context, r PasswordReset) (Account, error) {
	pwdHash, err := r.Password.Hash()
	if err != nil {
		return Account{}, err
	}

	var acc Account
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = s.findRedeemable(tx, r.Username, PurposeResetPassword, r.Code)
		if txErr != nil {
			return txErr
		}

		acc.PasswordHash = pwdHash
		acc.PendingChange = nil
		acc.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// ChangePassword sets a new password after verifying the current one. A
// pending password reset is cancelled, a pending email confirmation is kept.
// The caller is responsible for ending other sessions of the account.
//
// An AuthFailure is returned if the current password does not verify.
func (s *Service) ChangePassword(ctx context.Context, username Username, c PasswordChange) (Account, error) {
	pwdHash, err := c.New.Hash()
	if err != nil {
		return Account{}, err
	}

	var acc Account
	err = s.inTx(ctx, func(tx Tx) error {
		var (
			found bool
			txErr error
		)
		acc, found, txErr = findOne(tx, &AccountFilter{Usernames: []Username{username}})
		if txErr != nil {
			return txErr
		}

		if !found {
			_ = c.Current.Match(s.comparisonHash)
			return AuthFailure{Kind: AuthNotFound}
		}

		if !c.Current.Match(acc.PasswordHash) {
			return AuthFailure{Kind: AuthBadPassword}
		}

		acc.PasswordHash = pwdHash
		if acc.hasPending(PurposeResetPassword) {
			acc.PendingChange = nil
		}
		acc.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// GetAccount returns the account with the given username or errorz.ErrNotFound.
func (s *Service) GetAccount(ctx context.Context, username Username) (Account, error) {
	var acc Account
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = findExisting(tx, username)
		return txErr
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// UpdateProfile renames an account and edits its names. If the new username
// is in use by another account an errorz.Keyed error wrapping ErrConflict is returned.
func (s *Service) UpdateProfile(ctx context.Context, username Username, u ProfileUpdate) (Account, error) {
	var acc Account
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = findExisting(tx, username)
		if txErr != nil {
			return txErr
		}

		if u.Username != acc.Username {
			_, found, txErr := findOne(tx, &AccountFilter{Usernames: []Username{u.Username}})
			if txErr != nil {
				return txErr
			}

			if found {
				return errorz.Keyed{Key: "username", Err: ErrConflict}
			}
		}

		acc.Username = u.Username
		acc.FirstName = u.FirstName
		acc.LastName = u.LastName
		acc.UpdatedAt = s.NowFunc()

		return mapUnique(tx.UpdateAccount(&acc), ErrConflict)
	})
	if err != nil {
		return Account{}, err
	}

	return acc, nil
}

// ResendConfirmation issues a fresh code for the pending email confirmation
// of an account and emails it. An account with an unconfirmed email and no
// pending change gets a new confirmation for its current email. For other
// accounts this is a no-op.
func (s *Service) ResendConfirmation(ctx context.Context, username Username) error {
	var (
		acc    Account
		code   krypto.Token
		target email.Address
	)
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		acc, txErr = findExisting(tx, username)
		if txErr != nil {
			return txErr
		}

		switch {
		case acc.hasPending(PurposeConfirmEmail):
			target = acc.PendingChange.NewEmail
		case acc.PendingChange == nil && !acc.EmailConfirmed:
			target = acc.Email
		default:
			return nil
		}

		var pending *PendingChange
		code, pending, txErr = s.newPendingChange(PurposeConfirmEmail, target)
		if txErr != nil {
			return txErr
		}

		acc.PendingChange = pending
		acc.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&acc)
	})
	if err != nil {
		return err
	}

	if target == "" {
		return nil
	}

	template := TemplateEmailChange
	if target == acc.Email {
		template = TemplateRegistration
	}

	s.sendAsync(template, target, s.emailData(acc, target, code))

	return nil
}

// findRedeemable finds the account for username and checks that code redeems
// its pending change for purpose. Every failure is reported as errorz.ErrNotFound.
func (s *Service) findRedeemable(tx Tx, username Username, purpose Purpose, code krypto.Token) (Account, error) {
	acc, found, err := findOne(tx, &AccountFilter{Usernames: []Username{username}})
	if err != nil {
		return Account{}, err
	}

	if !found || !acc.hasPending(purpose) {
		// Compare anyway, so missing accounts take as long as wrong codes.
		_ = code.Match(s.comparisonHash)
		return Account{}, errorz.ErrNotFound
	}

	if s.NowFunc().Sub(acc.PendingChange.CreatedAt) > s.cfg.TokenExpiry {
		return Account{}, errorz.ErrNotFound
	}

	if !code.Match(acc.PendingChange.CodeHash) {
		return Account{}, errorz.ErrNotFound
	}

	return acc, nil
}

func (s *Service) newPendingChange(purpose Purpose, newEmail email.Address) (krypto.Token, *PendingChange, error) {
	code, err := krypto.GenerateToken()
	if err != nil {
		return krypto.Token{}, nil, err
	}

	hash, err := code.Hash()
	if err != nil {
		return krypto.Token{}, nil, err
	}

	return code, &PendingChange{
		Purpose:   purpose,
		NewEmail:  newEmail,
		CodeHash:  hash,
		CreatedAt: s.NowFunc(),
	}, nil
}

func (s *Service) emailData(acc Account, to email.Address, code krypto.Token) EmailData {
	return EmailData{
		Username: acc.Username,
		Email:    to,
		Code:     code,
		Expiry:   formatExpiry(s.cfg.TokenExpiry),
	}
}

// sendAsync sends an email in a separate goroutine. Errors are passed to the
// error handler.
//
// Sending could fail independently of the transaction that issued the code.
// This is an acceptable risk, the code can always be resent.
func (s *Service) sendAsync(template string, to email.Address, data EmailData) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.emailer.Send(wCtx, template, to, data)
		if err != nil {
			s.errHandler(fmt.Errorf("failed to send %s email: %w", template, err))
		}
	}()
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}

// findOne returns the single account matching filter, if any.
func findOne(tx Tx, filter *AccountFilter) (Account, bool, error) {
	accounts, err := tx.FindAccounts(filter)
	if err != nil {
		return Account{}, false, err
	}

	switch len(accounts) {
	case 0:
		return Account{}, false, nil
	case 1:
		return accounts[0], true, nil
	default:
		return Account{}, false, fmt.Errorf("found %d accounts, expected at most 1", len(accounts))
	}
}

// findExisting returns the account for username or errorz.ErrNotFound.
func findExisting(tx Tx, username Username) (Account, error) {
	acc, found, err := findOne(tx, &AccountFilter{Usernames: []Username{username}})
	if err != nil {
		return Account{}, err
	}

	if !found {
		return Account{}, fmt.Errorf("account %q: %w", username, errorz.ErrNotFound)
	}

	return acc, nil
}
