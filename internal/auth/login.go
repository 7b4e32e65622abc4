package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ===== Login =====
func (h *Handler) Login(c echo.Context) error {
	req := new(LoginRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := c.Request().Context()

	var (
		profile      Profile
		passwordHash string
	)
	err := h.pool.QueryRow(ctx,
		`SELECT id, email, username, COALESCE(phone, ''), COALESCE(country, ''), kyc_verified, created_at, password_hash
         FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(req.Email)),
	).Scan(
		&profile.ID, &profile.Email, &profile.Username, &profile.Phone,
		&profile.Country, &profile.KYCVerified, &profile.CreatedAt, &passwordHash,
	)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := h.issueToken(profile.ID, profile.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "login successful",
		"user":    profile,
		"token":   token,
	})
}
