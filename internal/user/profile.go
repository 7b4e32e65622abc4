package user

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/arielmonte/coinbarter/internal/auth"
)

// Handler serves the authenticated user's profile.
type Handler struct {
	pool *pgxpool.Pool
}

func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// GetProfile returns the caller's own profile
func (h *Handler) GetProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var profile auth.Profile
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

	return c.JSON(http.StatusOK, echo.Map{"user": profile})
}

// UpdateProfile applies a sparse patch to the caller's own profile.
// Only provided fields are written; username changes are checked for
// uniqueness and passwords are re-hashed before storage.
func (h *Handler) UpdateProfile(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Username *string `json:"username"`
		Phone    *string `json:"phone"`
		Country  *string `json:"country"`
		Password *string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	ctx := c.Request().Context()
	var sets []string
	var values []any
	paramCount := 1

	if req.Username != nil {
		var taken string
		if err := h.pool.QueryRow(ctx,
			`SELECT id FROM users WHERE username = $1 AND id != $2`, *req.Username, userID,
		).Scan(&taken); err == nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		sets = append(sets, fmt.Sprintf("username = $%d", paramCount))
		values = append(values, *req.Username)
		paramCount++
	}
	if req.Phone != nil {
		sets = append(sets, fmt.Sprintf("phone = $%d", paramCount))
		values = append(values, *req.Phone)
		paramCount++
	}
	if req.Country != nil {
		sets = append(sets, fmt.Sprintf("country = $%d", paramCount))
		values = append(values, *req.Country)
		paramCount++
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters"})
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
		}
		sets = append(sets, fmt.Sprintf("password_hash = $%d", paramCount))
		values = append(values, string(hashed))
		paramCount++
	}

	if len(sets) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no fields to update"})
	}
	values = append(values, userID)

	query := fmt.Sprintf(
		`UPDATE users SET %s WHERE id = $%d
         RETURNING id, email, username, COALESCE(phone, ''), COALESCE(country, ''), kyc_verified, created_at`,
		strings.Join(sets, ", "), paramCount,
	)

	var profile auth.Profile
	err := h.pool.QueryRow(ctx, query, values...).Scan(
		&profile.ID, &profile.Email, &profile.Username, &profile.Phone,
		&profile.Country, &profile.KYCVerified, &profile.CreatedAt,
	)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "profile updated successfully",
		"user":    profile,
	})
}
