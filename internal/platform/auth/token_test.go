package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func testTokenService(t *testing.T, now time.Time) *TokenService {
	t.Helper()
	s, err := NewTokenService(TokenConfig{
		Issuer:     "clinic-api",
		Audience:   "clinic-clients",
		SigningKey: testSigningKey,
		Lifetime:   60 * time.Minute,
		ClockSkew:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	s.now = func() time.Time { return now }
	return s
}

func testIdentity() Identity {
	return Identity{
		SubjectID: uuid.New(),
		Email:     "dr.house@example.com",
		Username:  "house",
		Roles:     []policy.Role{policy.RoleDoctor},
	}
}

func signClaims(t *testing.T, method jwt.SigningMethod, claims Claims, key interface{}) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func assertRejected(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected token to be rejected")
	}
	if apperr.CodeOf(err) != apperr.CodeUnauthenticated {
		t.Errorf("expected unauthenticated, got %s", apperr.CodeOf(err))
	}
}

func TestIssueAndValidate_RoundTrip(t *testing.T) {
	issued := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s := testTokenService(t, issued)
	id := testIdentity()

	token, expires, err := s.IssueToken(id)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !expires.Equal(issued.Add(time.Hour)) {
		t.Errorf("expected expiry %s, got %s", issued.Add(time.Hour), expires)
	}

	caller, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if caller.SubjectID != id.SubjectID || caller.Email != id.Email || caller.Username != id.Username {
		t.Errorf("unexpected caller: %+v", caller)
	}
	if len(caller.Roles) != 1 || caller.Roles[0] != policy.RoleDoctor {
		t.Errorf("unexpected roles: %v", caller.Roles)
	}
}

func TestValidate_LifetimeBoundary(t *testing.T) {
	issued := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s := testTokenService(t, issued)
	token, _, err := s.IssueToken(testIdentity())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name   string
		at     time.Duration
		accept bool
	}{
		{"one minute before expiry", 59 * time.Minute, true},
		{"within clock skew after expiry", 60*time.Minute + 20*time.Second, true},
		{"one minute after expiry", 61 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.now = func() time.Time { return issued.Add(tt.at) }
			_, err := s.ValidateToken(token)
			if tt.accept && err != nil {
				t.Errorf("expected token accepted, got %v", err)
			}
			if !tt.accept {
				assertRejected(t, err)
			}
		})
	}
}

func TestValidate_RejectsTamperedAndForeignTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s := testTokenService(t, now)
	id := testIdentity()

	good, _, err := s.IssueToken(id)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	base := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID.String(),
			Issuer:    "clinic-api",
			Audience:  jwt.ClaimStrings{"clinic-clients"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Roles: []string{"Doctor"},
	}

	wrongIssuer := base
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := base
	wrongAudience.Audience = jwt.ClaimStrings{"other-app"}
	noExpiry := base
	noExpiry.ExpiresAt = nil
	badSubject := base
	badSubject.Subject = "not-a-uuid"
	unknownRole := base
	unknownRole.Roles = []string{"Nurse"}

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	cases := map[string]string{
		"malformed":      "not.a.token",
		"empty":          "",
		"tampered":       tampered,
		"wrong key":      signClaims(t, jwt.SigningMethodHS256, base, []byte("another-secret")),
		"wrong alg":      signClaims(t, jwt.SigningMethodHS512, base, testSigningKey),
		"none alg":       signClaims(t, jwt.SigningMethodNone, base, jwt.UnsafeAllowNoneSignatureType),
		"wrong issuer":   signClaims(t, jwt.SigningMethodHS256, wrongIssuer, testSigningKey),
		"wrong audience": signClaims(t, jwt.SigningMethodHS256, wrongAudience, testSigningKey),
		"no expiry":      signClaims(t, jwt.SigningMethodHS256, noExpiry, testSigningKey),
		"bad subject":    signClaims(t, jwt.SigningMethodHS256, badSubject, testSigningKey),
		"unknown role":   signClaims(t, jwt.SigningMethodHS256, unknownRole, testSigningKey),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.ValidateToken(token)
			assertRejected(t, err)
		})
	}
}

func TestValidate_RejectionsShareOneMessage(t *testing.T) {
	s := testTokenService(t, time.Now())
	_, a := s.ValidateToken("garbage")
	_, b := s.ValidateToken(signClaims(t, jwt.SigningMethodHS256, Claims{}, []byte("x")))
	ea, eb := a.(*apperr.Error), b.(*apperr.Error)
	if ea.Message != eb.Message {
		t.Errorf("expected identical messages, got %q and %q", ea.Message, eb.Message)
	}
}

func TestNewTokenService_RequiresKeyAndLifetime(t *testing.T) {
	if _, err := NewTokenService(TokenConfig{Lifetime: time.Minute}); err == nil {
		t.Error("expected error without signing key")
	}
	if _, err := NewTokenService(TokenConfig{SigningKey: testSigningKey}); err == nil {
		t.Error("expected error without lifetime")
	}
}
