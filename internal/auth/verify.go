package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Verify confirms the bearer token and returns the caller's profile.
// The JWT middleware has already validated the token by the time this
// runs; a missing row means the account was deleted after issuance.
func (h *Handler) Verify(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var profile Profile
	err := h.pool.QueryRow(c.Request().Context(),
		`SELECT id, email, username, COALESCE(phone, ''), COALESCE(country, ''), kyc_verified, created_at
         FROM users WHERE id = $1`, userID,
	).Scan(
		&profile.ID, &profile.Email, &profile.Username, &profile.Phone,
		&profile.Country, &profile.KYCVerified, &profile.CreatedAt,
	)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "token valid",
		"user":    profile,
	})
}
