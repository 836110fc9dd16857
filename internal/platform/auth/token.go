package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// invalid wraps the reason a token was rejected. Every rejection carries
// the same code and message; the cause is only reachable through Unwrap,
// for logging.
func invalid(cause error) error {
	return apperr.Wrap(apperr.CodeUnauthenticated, cause, "invalid or expired credentials")
}

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// TokenConfig configures signing and validation. One HMAC secret signs and
// verifies every token.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	Lifetime   time.Duration
	ClockSkew  time.Duration
}

// Identity is what a session token asserts.
type Identity struct {
	SubjectID uuid.UUID
	Email     string
	Username  string
	Roles     []policy.Role
}

// TokenService issues and validates HS256 session tokens. It keeps no
// state between calls.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("token service: signing key is required")
	}
	if cfg.Lifetime <= 0 {
		return nil, errors.New("token service: lifetime must be positive")
	}
	return &TokenService{cfg: cfg, now: time.Now}, nil
}

// IssueToken signs a token for id that expires Lifetime from now.
func (s *TokenService) IssueToken(id Identity) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.cfg.Lifetime)

	roles := make([]string, len(id.Roles))
	for i, r := range id.Roles {
		roles[i] = string(r)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.SubjectID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:    id.Email,
		Username: id.Username,
		Roles:    roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken checks algorithm, signature, issuer, audience and expiry
// (with ClockSkew leeway) and returns the caller the token asserts. Every
// failure is an Unauthenticated error.
func (s *TokenService) ValidateToken(token string) (policy.Caller, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.cfg.ClockSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return policy.Caller{}, invalid(err)
	}
	if !parsed.Valid {
		return policy.Caller{}, invalid(errors.New("token not valid"))
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return policy.Caller{}, invalid(fmt.Errorf("subject: %w", err))
	}

	caller := policy.Caller{SubjectID: subject, Email: claims.Email, Username: claims.Username}
	for _, r := range claims.Roles {
		if role, ok := policy.ParseRole(r); ok {
			caller.Roles = append(caller.Roles, role)
		}
	}
	if len(caller.Roles) == 0 {
		return policy.Caller{}, invalid(errors.New("token carries no known role"))
	}
	return caller, nil
}
