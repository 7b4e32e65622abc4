package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arielmonte/coinbarter/internal/config"
)

// Handler serves signup, login and token verification.
type Handler struct {
	pool *pgxpool.Pool
	cfg  *config.Config
}

func NewHandler(pool *pgxpool.Pool, cfg *config.Config) *Handler {
	return &Handler{pool: pool, cfg: cfg}
}

// Profile is the user shape returned by auth and profile endpoints.
// The password hash never leaves the database layer.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Phone       string    `json:"phone,omitempty"`
	Country     string    `json:"country,omitempty"`
	KYCVerified bool      `json:"kyc_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *Handler) issueToken(userID, email string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     time.Now().Add(h.cfg.JWTTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}
