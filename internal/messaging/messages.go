package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Message is a direct message between two users about a listing.
type Message struct {
	ID                string     `json:"id"`
	SenderID          string     `json:"sender_id"`
	RecipientID       string     `json:"recipient_id"`
	ListingID         string     `json:"listing_id"`
	Content           string     `json:"content"`
	CreatedAt         time.Time  `json:"created_at"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	SenderUsername    string     `json:"sender_username,omitempty"`
	RecipientUsername string     `json:"recipient_username,omitempty"`
}

// Handler serves listing-scoped direct messages.
type Handler struct {
	pool *pgxpool.Pool
}

func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// SendMessage - user messages another user about a listing
func (h *Handler) SendMessage(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		RecipientID string `json:"recipient_id"`
		ListingID   string `json:"listing_id"`
		Content     string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Content == "" || len(req.Content) > 1000 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "content is required (max 1000 characters)"})
	}
	if req.RecipientID == userID {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "you cannot message yourself"})
	}

	ctx := c.Request().Context()

	var exists string
	if err := h.pool.QueryRow(ctx,
		`SELECT id FROM users WHERE id = $1`, req.RecipientID,
	).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "recipient not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch recipient"})
	}
	if err := h.pool.QueryRow(ctx,
		`SELECT id FROM listings WHERE id = $1`, req.ListingID,
	).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch listing"})
	}

	msg := Message{
		ID:          uuid.New().String(),
		SenderID:    userID,
		RecipientID: req.RecipientID,
		ListingID:   req.ListingID,
		Content:     req.Content,
		CreatedAt:   time.Now(),
	}
	_, err := h.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, listing_id, content, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.RecipientID, msg.ListingID, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send message"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "message sent successfully",
		"data":    msg,
	})
}

// ListMessages - the caller's messages, both directions, newest first
func (h *Handler) ListMessages(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	limit := 50
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	query := `
        SELECT m.id, m.sender_id, m.recipient_id, m.listing_id, m.content, m.created_at, m.read_at,
               COALESCE(s.username, ''), COALESCE(r.username, '')
        FROM messages m
        LEFT JOIN users s ON m.sender_id = s.id
        LEFT JOIN users r ON m.recipient_id = r.id
        WHERE (m.sender_id = $1 OR m.recipient_id = $1)`
	args := []any{userID}
	paramCount := 2

	if listingID := c.QueryParam("listing_id"); listingID != "" {
		query += fmt.Sprintf(" AND m.listing_id = $%d", paramCount)
		args = append(args, listingID)
		paramCount++
	}
	if with := c.QueryParam("with"); with != "" {
		query += fmt.Sprintf(` AND (
            (m.sender_id = $1 AND m.recipient_id = $%d) OR
            (m.sender_id = $%d AND m.recipient_id = $1))`, paramCount, paramCount)
		args = append(args, with)
		paramCount++
	}

	query += " ORDER BY m.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramCount, paramCount+1)
	args = append(args, limit, offset)

	rows, err := h.pool.Query(c.Request().Context(), query, args...)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch messages"})
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.RecipientID, &m.ListingID, &m.Content,
			&m.CreatedAt, &m.ReadAt, &m.SenderUsername, &m.RecipientUsername,
		); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse message record"})
		}
		messages = append(messages, m)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"messages": messages,
		"total":    len(messages),
		"limit":    limit,
		"offset":   offset,
	})
}

// MarkRead - recipient marks a message as read
func (h *Handler) MarkRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	msgID := c.Param("id")
	if msgID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing message id"})
	}

	res, err := h.pool.Exec(c.Request().Context(),
		`UPDATE messages SET read_at = NOW() WHERE id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		msgID, userID,
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update message"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "message not found, not yours, or already read"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "message marked as read"})
}
