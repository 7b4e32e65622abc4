package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingSide says whether a listing offers to sell or asks to buy.
type ListingSide string

const (
	SideSell ListingSide = "SELL"
	SideBuy  ListingSide = "BUY"
)

// ListingStatus is the publication state of a listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "ACTIVE"
	ListingPaused    ListingStatus = "PAUSED"
	ListingFinalized ListingStatus = "FINALIZED"
	ListingCancelled ListingStatus = "CANCELLED"
)

// Listing is a posted offer to buy or sell a quantity of an asset.
// Quantity is the remaining amount still open for transactions; it is
// only ever reduced through transaction creation or edited by the owner.
type Listing struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Username       string          `json:"username,omitempty"`
	Side           ListingSide     `json:"side"`
	Asset          string          `json:"asset"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Fiat           string          `json:"fiat"`
	PaymentMethods []string        `json:"payment_methods"`
	Description    string          `json:"description,omitempty"`
	Location       string          `json:"location,omitempty"`
	Status         ListingStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Transaction is a binding agreement derived from one listing. Total is
// fixed at creation time and never recomputed from the listing.
type Transaction struct {
	ID             string            `json:"id"`
	BuyerID        string            `json:"buyer_id"`
	SellerID       string            `json:"seller_id"`
	ListingID      string            `json:"listing_id"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Total          decimal.Decimal   `json:"total"`
	Status         TransactionStatus `json:"status"`
	SettlementHash *string           `json:"settlement_hash,omitempty"`
	// BuyerRating is the score the buyer gave the seller; SellerRating is
	// the score the seller gave the buyer. Each is set at most once.
	BuyerRating    *int              `json:"buyer_rating,omitempty"`
	SellerRating   *int              `json:"seller_rating,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TransactionDetail is a transaction joined with counterparty usernames
// and the listing's asset and side, used in history responses.
type TransactionDetail struct {
	Transaction
	BuyerUsername  string      `json:"buyer_username,omitempty"`
	SellerUsername string      `json:"seller_username,omitempty"`
	ListingAsset   string      `json:"listing_asset,omitempty"`
	ListingSide    ListingSide `json:"listing_side,omitempty"`
}

// ListingFilter narrows the public listing feed.
type ListingFilter struct {
	Side          string
	Asset         string
	Status        string
	PaymentMethod string
	Location      string
	Limit         int
	Offset        int
}

// TransactionFilter narrows a user's transaction history. Role is
// "purchases" (caller is buyer), "sales" (caller is seller) or empty.
type TransactionFilter struct {
	Status string
	Role   string
	Limit  int
	Offset int
}

// RatingInput carries one or both rating directions for a completed
// transaction.
type RatingInput struct {
	BuyerRatesSeller *int `json:"buyer_rates_seller"`
	SellerRatesBuyer *int `json:"seller_rates_buyer"`
}
