package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"tradeguard/internal/delivery/http/dto"
	"tradeguard/internal/middleware"
)

// TokenIssuer generates access tokens.
type TokenIssuer interface {
	GenerateJWT(username, role string) (string, error)
}

// AuthHandler handles operator login against the configured admin account
type AuthHandler struct {
	username     string
	passwordHash []byte
	tokens       TokenIssuer
	tokenTTL     time.Duration
}

// NewAuthHandler creates a new AuthHandler. passwordHash is a bcrypt hash.
func NewAuthHandler(username, passwordHash string, tokens TokenIssuer, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		username:     username,
		passwordHash: []byte(passwordHash),
		tokens:       tokens,
		tokenTTL:     tokenTTL,
	}
}

// Login handles operator login
// POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestResponse(c, "Invalid request payload")
	}

	if req.Username == "" || req.Password == "" {
		return BadRequestResponse(c, "Username and password are required")
	}

	// Always run bcrypt so a wrong username costs the same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		return UnauthorizedResponse(c, "Invalid credentials")
	}

	token, err := h.tokens.GenerateJWT(req.Username, middleware.RoleAdmin)
	if err != nil {
		return InternalServerErrorResponse(c, "Failed to generate token", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.tokenTTL.Seconds()),
	})

	return SuccessResponse(c, dto.LoginResponse{
		Token:     token,
		Username:  req.Username,
		Role:      middleware.RoleAdmin,
		ExpiresIn: int64(h.tokenTTL.Seconds()),
	})
}

// Logout clears the token cookie
// POST /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return SuccessMessageResponse(c, "Logged out", nil)
}
