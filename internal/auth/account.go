package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

// Purpose identifies what a pending change is waiting for.
type Purpose string

const (
	// PurposeConfirmEmail indicates a new email address awaits confirmation.
	PurposeConfirmEmail Purpose = "confirm-email"
	// PurposeResetPassword indicates a password reset was requested.
	PurposeResetPassword Purpose = "reset-password"
)

// PendingChange is a change to an account that awaits redemption of a
// code that was emailed to the owner. An account has at most one.
type PendingChange struct {
	Purpose Purpose
	// NewEmail is only set for PurposeConfirmEmail.
	NewEmail email.Address
	// CodeHash is the hash of the emailed code. We hash the code to prevent
	// someone with access to the database from mis-using it.
	CodeHash  krypto.Argon2Hash
	CreatedAt time.Time
}

// Account contains the data of a user account.
type Account struct {
	ID             uuid.UUID
	Username       Username
	Email          email.Address
	PasswordHash   krypto.Argon2Hash
	FirstName      string
	LastName       string
	EmailConfirmed bool
	PendingChange  *PendingChange
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Account) hasPending(p Purpose) bool {
	return a.PendingChange != nil && a.PendingChange.Purpose == p
}

// Registration is the input for registering a new account.
type Registration struct {
	Username  Username
	Password  Password
	Email     email.Address
	FirstName string
	LastName  string
}

// Credentials are used to authenticate an account.
type Credentials struct {
	Username Username
	Password Password
}

// Confirmation redeems the code of a pending email confirmation.
type Confirmation struct {
	Username Username
	Code     krypto.Token
}

// PasswordReset redeems the code of a pending password reset.
type PasswordReset struct {
	Username Username
	Code     krypto.Token
	Password Password
}

// PasswordChange changes the password of an authenticated account.
type PasswordChange struct {
	Current Password
	New     Password
}

// ProfileUpdate edits the profile of an account. Emails are changed
// through RequestEmailChange instead.
type ProfileUpdate struct {
	Username  Username
	FirstName string
	LastName  string
}
