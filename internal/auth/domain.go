package auth

import (
	"time"

	"github.com/tracechain/tracechain/internal/rbac"
)

// User represents an account that can sign in.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Role          rbac.Role
	WalletAddress string
	MFASecret     string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MFAEnabled reports whether the user enrolled a TOTP secret.
func (u *User) MFAEnabled() bool {
	return u != nil && u.MFASecret != ""
}

// Principal returns the request-scoped identity for u.
func (u *User) Principal(mfaVerified bool) Principal {
	return Principal{
		ID:            u.ID,
		Email:         u.Email,
		Role:          u.Role,
		WalletAddress: u.WalletAddress,
		MFAEnabled:    u.MFAEnabled(),
		MFAVerified:   u.MFAEnabled() && mfaVerified,
	}
}

// Principal is the authenticated actor attached to a single request.
type Principal struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Role          rbac.Role `json:"role"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	MFAVerified   bool      `json:"mfaVerified"`
}
