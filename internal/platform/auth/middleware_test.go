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

func runJWT(t *testing.T, header string) (Actor, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Actor
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(func(c echo.Context) error {
		got = ActorFrom(c)
		return c.String(http.StatusOK, "ok")
	})
	return got, h(c)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runJWT(t, "")
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	for _, header := range []string{"Token abc123", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz"} {
		if _, err := runJWT(t, header); err == nil {
			t.Errorf("header %q: expected error", header)
		}
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-17",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: "Nurse Joy",
		Role: RoleWardStaff,
		Ward: "ICU",
	}, testSigningKey)

	actor, err := runJWT(t, "Bearer "+tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Actor{ID: "u-17", Name: "Nurse Joy", Role: RoleWardStaff, Ward: "ICU"}
	if actor != want {
		t.Errorf("actor = %+v, want %+v", actor, want)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Role: RoleAdmin,
	}, testSigningKey)

	if _, err := runJWT(t, "Bearer "+tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tok := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"},
		Role:             RoleAdmin,
	}, []byte("another-key"))

	if _, err := runJWT(t, "Bearer "+tok); err == nil {
		t.Fatal("expected token signed with another key to be rejected")
	}
}

func TestDevAuthMiddleware_Overrides(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-Role", RoleERStaff)
	req.Header.Set("X-Dev-Ward", "Emergency")
	c := e.NewContext(req, httptest.NewRecorder())

	var got Actor
	_ = DevAuthMiddleware()(func(c echo.Context) error {
		got = ActorFrom(c)
		return nil
	})(c)

	if got.Role != RoleERStaff || got.Ward != "Emergency" || got.ID != "dev-er_staff" {
		t.Errorf("unexpected dev actor %+v", got)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role string
		want int
	}{
		{RoleBedManager, http.StatusOK},
		{RoleAdmin, http.StatusOK},
		{RoleERStaff, http.StatusForbidden},
	}
	for _, tc := range cases {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), Actor{ID: "x", Role: tc.role}))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := RequireRole(RoleBedManager)(func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})(c)

		code := rec.Code
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code != tc.want {
			t.Errorf("role %s: got %d, want %d", tc.role, code, tc.want)
		}
	}
}
