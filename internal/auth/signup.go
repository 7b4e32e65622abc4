package auth

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
}

// ===== Signup =====
func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email is required"})
	}
	if !usernameRe.MatchString(req.Username) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username must be 3-50 characters (letters, digits, underscore)"})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters"})
	}

	ctx := c.Request().Context()

	// Duplicate checks surface as distinct 409s, matching the client's
	// field-level error display.
	var existing string
	if err := h.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE email = $1`, req.Email,
	).Scan(&existing); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}
	if err := h.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE username = $1`, req.Username,
	).Scan(&existing); err == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}

	profile := Profile{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Username:  req.Username,
		Phone:     req.Phone,
		Country:   req.Country,
		CreatedAt: time.Now(),
	}
	_, err = h.pool.Exec(ctx,
		`INSERT INTO users (id, email, username, password_hash, phone, country, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		profile.ID, profile.Email, profile.Username, string(hashed),
		nullIfEmpty(req.Phone), nullIfEmpty(req.Country), profile.CreatedAt,
	)
	if err != nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email or username already in use"})
	}

	token, err := h.issueToken(profile.ID, profile.Email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "user registered successfully",
		"user":    profile,
		"token":   token,
	})
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
