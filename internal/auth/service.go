package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult is returned after a successful credential or MFA check.
type LoginResult struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Principal   Principal `json:"user"`
	MFARequired bool      `json:"mfaRequired"`
}

var (
	compareHash = bcrypt.CompareHashAndPassword
	dummyHash   = sync.OnceValue(func() string {
		hash, err := bcrypt.GenerateFromPassword([]byte("tracechain-unknown-user"), bcrypt.DefaultCost)
		if err != nil {
			panic(err)
		}
		return string(hash)
	})
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenManager
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens, now: time.Now}
}

// Authenticate validates email/password credentials. Unknown emails are
// checked against a throwaway hash so response time does not reveal which
// accounts exist. Repository failures other than ErrNotFound are returned
// unchanged.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("auth: find user: %w", err)
		}
		_ = compareHash([]byte(dummyHash()), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := compareHash([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and issues a token. Users with MFA enrolled
// receive a token that is not yet MFA-verified.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	principal := user.Principal(false)
	token, expiresAt, err := s.tokens.Issue(principal)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:       token,
		ExpiresAt:   expiresAt,
		Principal:   principal,
		MFARequired: principal.MFAEnabled,
	}, nil
}

// VerifyMFA checks a TOTP code for the principal's account and issues an
// MFA-verified token on success.
func (s *Service) VerifyMFA(ctx context.Context, principal Principal, code string) (LoginResult, error) {
	user, err := s.repo.FindByID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !user.IsActive {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !user.MFAEnabled() {
		return LoginResult{}, ErrMFANotEnabled
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), user.MFASecret, s.now().UTC(), totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidMFACode
	}
	verified := user.Principal(true)
	token, expiresAt, err := s.tokens.Issue(verified)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expiresAt, Principal: verified}, nil
}
