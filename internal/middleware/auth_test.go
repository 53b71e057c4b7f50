package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, authn *Authenticator, setup func(*http.Request)) (int, string) {
	t.Helper()
	e := echo.New()
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen, _ = GetUsername(c)
		return c.NoContent(http.StatusOK)
	}, authn.Middleware, AdminMiddleware)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setup(req)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestMiddleware(t *testing.T) {
	authn := NewAuthenticator("secret", time.Hour)
	admin, err := authn.GenerateJWT("ops", RoleAdmin)
	require.NoError(t, err)
	viewer, err := authn.GenerateJWT("guest", "VIEWER")
	require.NoError(t, err)

	expired := NewAuthenticator("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.GenerateJWT("ops", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name     string
		setup    func(*http.Request)
		wantCode int
		wantUser string
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+admin) }, http.StatusOK, "ops"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: admin}) }, http.StatusOK, "ops"},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Token "+admin) }, http.StatusUnauthorized, ""},
		{"expired", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+stale) }, http.StatusUnauthorized, ""},
		{"not admin", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+viewer) }, http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, user := serve(t, authn, tt.setup)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}
