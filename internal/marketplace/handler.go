package marketplace

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler exposes the marketplace service over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func requesterID(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}

// respondError renders a marketplace error with its stable code, or a
// generic 500 for anything unexpected.
func respondError(c echo.Context, err error) error {
	var mErr *Error
	if errors.As(err, &mErr) {
		return c.JSON(mErr.HTTPStatus(), echo.Map{
			"error":   string(mErr.Kind),
			"message": mErr.Message,
		})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{
		"error":   "internal",
		"message": "internal server error",
	})
}

func parsePaging(c echo.Context, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= maxLimit {
			limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
