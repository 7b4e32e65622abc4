package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// =========================
// CreateTransaction - user transacts against a listing
// =========================
func (h *Handler) CreateTransaction(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		ListingID string          `json:"listing_id"`
		Quantity  decimal.Decimal `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil || req.ListingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid listing_id"})
	}

	txn, err := h.svc.CreateTransaction(c.Request().Context(), uid, req.ListingID, req.Quantity)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message":     "transaction created successfully",
		"transaction": txn,
	})
}

// =========================
// GetUserTransactions - history for the caller, both sides
// =========================
func (h *Handler) GetUserTransactions(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	limit, offset := parsePaging(c, 20, 100)
	f := TransactionFilter{
		Status: c.QueryParam("status"),
		Role:   c.QueryParam("role"),
		Limit:  limit,
		Offset: offset,
	}

	txns, err := h.svc.Transactions(c.Request().Context(), uid, f)
	if err != nil {
		return respondError(c, err)
	}
	if txns == nil {
		txns = []TransactionDetail{}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"transactions": txns,
		"total":        len(txns),
		"limit":        limit,
		"offset":       offset,
	})
}

// =========================
// UpdateTransactionStatus - buyer or seller advances the state machine
// =========================
func (h *Handler) UpdateTransactionStatus(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing transaction id"})
	}

	var req struct {
		Status         string  `json:"status"`
		SettlementHash *string `json:"settlement_hash"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	txn, err := h.svc.SetTransactionStatus(c.Request().Context(), id, uid, req.Status, req.SettlementHash)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":     "transaction status updated successfully",
		"transaction": txn,
	})
}

// =========================
// RateTransaction - counterparty ratings after completion
// =========================
func (h *Handler) RateTransaction(c echo.Context) error {
	uid, ok := requesterID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing transaction id"})
	}

	var req RatingInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	txn, err := h.svc.RateTransaction(c.Request().Context(), id, uid, req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":     "rating saved successfully",
		"transaction": txn,
	})
}
