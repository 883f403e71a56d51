package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tracechain/tracechain/internal/rbac"
)

const minSecretLength = 32

// Claims is the JWT payload carrying a Principal.
type Claims struct {
	Email       string `json:"email"`
	Role        string `json:"role"`
	Wallet      string `json:"wallet,omitempty"`
	MFAEnabled  bool   `json:"mfa_enabled,omitempty"`
	MFAVerified bool   `json:"mfa_verified,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 principal tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager validates the secret and builds a TokenManager.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: jwt secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "tracechain"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for p and returns it with its expiry.
func (m *TokenManager) Issue(p Principal) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, errors.New("auth: principal id is required")
	}
	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Email:       p.Email,
		Role:        string(p.Role),
		Wallet:      p.WalletAddress,
		MFAEnabled:  p.MFAEnabled,
		MFAVerified: p.MFAVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses token and returns the principal it carries.
func (m *TokenManager) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, ErrInvalidToken
	}
	// Unknown roles are kept verbatim; rbac denies them everywhere.
	return Principal{
		ID:            claims.Subject,
		Email:         claims.Email,
		Role:          rbac.Role(strings.ToLower(strings.TrimSpace(claims.Role))),
		WalletAddress: claims.Wallet,
		MFAEnabled:    claims.MFAEnabled,
		MFAVerified:   claims.MFAEnabled && claims.MFAVerified,
	}, nil
}
