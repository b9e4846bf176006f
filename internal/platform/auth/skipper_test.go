package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthSkipper(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/api/v1/settings", false},
		{"/api/v1/resources/:type", false},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, tt.path, nil), httptest.NewRecorder())
			c.SetPath(tt.path)
			if got := AuthSkipper(c); got != tt.want {
				t.Errorf("AuthSkipper(%s) = %v, want %v", tt.path, got, tt.want)
			}
			if IsPublicPath(tt.path) != tt.want {
				t.Errorf("IsPublicPath(%s) mismatch", tt.path)
			}
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	e := echo.New()

	for _, tc := range []struct {
		path   string
		passes bool
	}{
		{"/health", true},
		{"/api/v1/settings", false},
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, tc.path, nil), httptest.NewRecorder())
		c.SetPath(tc.path)
		called := false
		err := mw(func(echo.Context) error { called = true; return nil })(c)
		if called != tc.passes {
			t.Errorf("%s: expected called=%v, got %v (err=%v)", tc.path, tc.passes, called, err)
		}
	}
}
