package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// =========================
// CreateListing - user publishes a buy/sell listing
// =========================
func (h *Handler) CreateListing(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req CreateListingInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	listing, err := h.svc.CreateListing(c.Request().Context(), uid, req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "listing created successfully",
		"listing": listing,
	})
}

// =========================
// GetListings - public feed with optional filters
// =========================
func (h *Handler) GetListings(c echo.Context) error {
	limit, offset := parsePaging(c, 20, 100)
	f := ListingFilter{
		Side:          c.QueryParam("side"),
		Asset:         c.QueryParam("asset"),
		Status:        c.QueryParam("status"),
		PaymentMethod: c.QueryParam("payment_method"),
		Location:      c.QueryParam("location"),
		Limit:         limit,
		Offset:        offset,
	}

	listings, err := h.svc.Listings(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	if listings == nil {
		listings = []Listing{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"listings": listings,
		"total":    len(listings),
		"limit":    limit,
		"offset":   offset,
	})
}

// =========================
// GetListing - public detail
// =========================
func (h *Handler) GetListing(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing listing id"})
	}

	listing, err := h.svc.Listing(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"listing": listing})
}

// =========================
// UpdateListing - owner patches fields
// =========================
func (h *Handler) UpdateListing(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing listing id"})
	}

	var req UpdateListingInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	listing, err := h.svc.UpdateListing(c.Request().Context(), id, uid, req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "listing updated successfully",
		"listing": listing,
	})
}

// =========================
// DeleteListing - owner removes a listing
// =========================
func (h *Handler) DeleteListing(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing listing id"})
	}

	if err := h.svc.DeleteListing(c.Request().Context(), id, uid); err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "listing deleted successfully"})
}

// =========================
// GetUserListings - the caller's own listings
// =========================
func (h *Handler) GetUserListings(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	limit, offset := parsePaging(c, 20, 100)
	listings, err := h.svc.OwnListings(c.Request().Context(), uid, c.QueryParam("status"), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	if listings == nil {
		listings = []Listing{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"listings": listings,
		"total":    len(listings),
		"limit":    limit,
		"offset":   offset,
	})
}
