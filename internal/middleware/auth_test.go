package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func runAuth(t *testing.T, header string) (string, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen string
	err := AuthMiddleware(testSecret)(func(c echo.Context) error {
		seen, _ = c.Get(UserIDKey).(string)
		return nil
	})(c)
	return seen, err
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	userID, err := runAuth(t, "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestAuthMiddlewareRejections(t *testing.T) {
	expired := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongKey := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "user-1"})
	noSubject := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{})
	wrongAlg := sign(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{Subject: "user-1"})

	for _, tc := range []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no subject", "Bearer " + noSubject},
		{"wrong algorithm", "Bearer " + wrongAlg},
	} {
		t.Run(tc.name, func(t *testing.T) {
			userID, err := runAuth(t, tc.header)

			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			require.Equal(t, http.StatusUnauthorized, httpErr.Code)
			require.Empty(t, userID)
		})
	}
}

func TestAuthMiddlewareWithoutSecretRejectsEverything(t *testing.T) {
	// HMAC verification accepts a zero-length key, so such tokens must not pass
	token := sign(t, jwt.SigningMethodHS256, []byte(""), jwt.RegisteredClaims{Subject: "attacker"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := AuthMiddleware("")(func(c echo.Context) error {
		called = true
		return nil
	})(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Code)
	require.False(t, called)
	require.Nil(t, c.Get(UserIDKey))
}
