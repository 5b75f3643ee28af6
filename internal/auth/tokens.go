package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingSubject       = errors.New("auth: subject required")
	ErrInvalidToken         = errors.New("auth: invalid token")
)

// Claims is the JWT payload exchanged with the external identity provider.
// Subject carries the stable user id; the profile fields are advisory and
// refreshed on every authorized request.
type Claims struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManagerConfig configures HS256 token issuance and validation.
type TokenManagerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenManager issues and validates bearer tokens shared with the identity
// collaborator. Password handling and account lifecycle live outside this
// service; only the signing secret is shared.
type TokenManager struct {
	signingSecret []byte
	issuer        string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenManager constructs a TokenManager with sane defaults.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenManager{
		signingSecret: cfg.SigningSecret,
		issuer:        cfg.Issuer,
		tokenTTL:      ttl,
		clock:         clock,
	}
}

// IssueToken produces a signed JWT for the given user.
func (m *TokenManager) IssueToken(userID, displayName, email string) (string, error) {
	if len(m.signingSecret) == 0 {
		return "", ErrMissingSigningSecret
	}
	if userID == "" {
		return "", ErrMissingSubject
	}

	now := m.clock().UTC()
	claims := Claims{
		DisplayName: displayName,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingSecret)
}

// ValidateToken ensures the bearer token is well formed and returns its claims.
func (m *TokenManager) ValidateToken(tokenString string) (Claims, error) {
	if len(m.signingSecret) == 0 {
		return Claims{}, ErrMissingSigningSecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.clock),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Claims{}, ErrMissingSubject
	}
	return *claims, nil
}
