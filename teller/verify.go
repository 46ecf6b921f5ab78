/*
verify.go - Manager credential verification

PURPOSE:
  Shortage resolution needs a manager to re-enter their password at the
  moment of authorization. This is deliberately stronger than the
  role-based checks the API layer already performs: the credential check
  proves presence, the role check proves rank, and both are required.
*/
package teller

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// StaffCredential is the stored credential record for one staff member.
type StaffCredential struct {
	StaffID      string
	PasswordHash string // bcrypt
	Role         string // "teller", "loan_officer", "branch_manager", "admin"
}

// CredentialStore loads staff credentials for verification.
type CredentialStore interface {
	GetStaffCredential(ctx context.Context, staffID string) (*StaffCredential, error)
}

// BcryptVerifier verifies a manager's password against the stored bcrypt
// hash and checks that the staff member holds a manager-grade role.
type BcryptVerifier struct {
	Credentials CredentialStore
}

func (v *BcryptVerifier) VerifyManager(ctx context.Context, staffID, password string) error {
	cred, err := v.Credentials.GetStaffCredential(ctx, staffID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if cred.Role != "branch_manager" && cred.Role != "admin" {
		return fmt.Errorf("%w: staff %s is not a manager", ErrVerificationFailed, staffID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return fmt.Errorf("%w: bad credentials", ErrVerificationFailed)
	}
	return nil
}

// Compile-time check
var _ CredentialVerifier = (*BcryptVerifier)(nil)

// HashPassword produces a bcrypt hash for seeding staff credentials.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
