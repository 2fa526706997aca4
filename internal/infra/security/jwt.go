package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
)

const (
	defaultSessionTTL = 30 * time.Minute
	minSecretLength   = 32
)

var (
	// ErrSecretTooShort indicates an HMAC secret below the minimum length.
	ErrSecretTooShort = errors.New("jwt: secret must be at least 32 bytes")
	// ErrInvalidToken indicates a token that failed parsing, signature or claim validation.
	ErrInvalidToken = errors.New("jwt: invalid token")
)

// SessionClaims augments registered claims with the principal's capabilities.
type SessionClaims struct {
	Capabilities []string `json:"caps,omitempty"`
	DisplayName  string   `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// HasCapability reports whether the token grants capability.
func (c *SessionClaims) HasCapability(capability domain.Capability) bool {
	for _, granted := range c.Capabilities {
		if granted == string(capability) {
			return true
		}
	}
	return false
}

// SessionTokens issues and verifies HS256 session tokens.
type SessionTokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionTokens constructs a token manager. ttl <= 0 falls back to 30 minutes.
func NewSessionTokens(secret, issuer string, ttl time.Duration) (*SessionTokens, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionTokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the clock used during verification.
func (s *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue signs a session token for principal valid from at.
func (s *SessionTokens) Issue(_ context.Context, principal domain.Principal, at time.Time) (domain.Session, error) {
	subject := strings.TrimSpace(principal.ID)
	if subject == "" {
		return domain.Session{}, fmt.Errorf("jwt: principal id is required")
	}
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	jti := uuid.NewString()
	expires := at.Add(s.ttl)
	claims := &SessionClaims{
		Capabilities: normalizeCapabilities(principal.Capabilities),
		DisplayName:  principal.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(at),
			NotBefore: jwt.NewNumericDate(at),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.Session{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	return domain.Session{
		ID:          jti,
		PrincipalID: subject,
		Token:       signed,
		IssuedAt:    at,
		ExpiresAt:   expires,
	}, nil
}

// Verify parses token and validates its signature, issuer and lifetime.
func (s *SessionTokens) Verify(token string) (*SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func normalizeCapabilities(input []string) []string {
	if len(input) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(input))
	result := make([]string, 0, len(input))
	for _, capability := range input {
		capability = strings.TrimSpace(capability)
		if capability == "" {
			continue
		}
		if _, exists := seen[capability]; exists {
			continue
		}
		seen[capability] = struct{}{}
		result = append(result, capability)
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

var _ port.SessionIssuer = (*SessionTokens)(nil)
