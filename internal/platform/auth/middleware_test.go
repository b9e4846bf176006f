package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Dana Reviewer",
		Roles: []string{RoleEditor},
	}
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (echo.Context, error, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen echo.Context
	called := false
	err := mw(func(c echo.Context) error {
		called = true
		seen = c
		return nil
	})(c)
	if seen == nil {
		seen = c
	}
	return seen, err, called
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err, called := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "")
	if called {
		t.Error("handler should not run without a token")
	}
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)

	c, err, called := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected handler to run")
	}

	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Errorf("expected user-123, got %q", got)
	}
	if got := UserNameFromContext(ctx); got != "Dana Reviewer" {
		t.Errorf("expected name, got %q", got)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleEditor {
		t.Errorf("unexpected roles %v", roles)
	}
}

func TestJWTMiddleware_Rejections(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noSubject := validClaims()
	noSubject.Subject = ""

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "https://other.example.com"

	tests := []struct {
		name  string
		token string
	}{
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"wrong key", createTestToken(t, validClaims(), []byte("another-key"))},
		{"no subject", createTestToken(t, noSubject, testSigningKey)},
		{"wrong issuer", createTestToken(t, wrongIssuer, testSigningKey)},
	}
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp.example.com"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err, called := runMiddleware(t, JWTMiddleware(cfg), "Bearer "+tt.token)
			if called {
				t.Error("handler should not run")
			}
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_AudienceChecked(t *testing.T) {
	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"fhir-console"}
	token := createTestToken(t, claims, testSigningKey)

	_, err, _ := runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Audience: "fhir-console"}), "Bearer "+token)
	if err != nil {
		t.Fatalf("expected matching audience to pass, got %v", err)
	}

	_, err, _ = runMiddleware(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Audience: "other"}), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware(t *testing.T) {
	c, err, called := runMiddleware(t, DevAuthMiddleware(), "")
	if err != nil || !called {
		t.Fatalf("expected pass-through, got err=%v called=%v", err, called)
	}
	ctx := c.Request().Context()
	if UserIDFromContext(ctx) != DevUserID {
		t.Errorf("expected %s, got %q", DevUserID, UserIDFromContext(ctx))
	}
	if !HasRole(RolesFromContext(ctx), RoleEditor) {
		t.Error("dev user should pass every role check")
	}
}

func TestFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()
	if UserIDFromContext(ctx) != "" || UserNameFromContext(ctx) != "" || RolesFromContext(ctx) != nil {
		t.Error("expected empty identity on a bare context")
	}
}
