package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service implements the listing and transaction lifecycle rules over
// the backing stores.
type Service struct {
	listings     ListingStore
	transactions TransactionStore
}

func NewService(listings ListingStore, transactions TransactionStore) *Service {
	return &Service{listings: listings, transactions: transactions}
}

// CreateListingInput carries the fields a new listing is created from.
type CreateListingInput struct {
	Side           string          `json:"side"`
	Asset          string          `json:"asset"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Fiat           string          `json:"fiat"`
	PaymentMethods []string        `json:"payment_methods"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
}

// UpdateListingInput is a sparse patch: nil fields are left untouched.
type UpdateListingInput struct {
	Side           *string          `json:"side"`
	Asset          *string          `json:"asset"`
	Quantity       *decimal.Decimal `json:"quantity"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	Fiat           *string          `json:"fiat"`
	PaymentMethods *[]string        `json:"payment_methods"`
	Description    *string          `json:"description"`
	Location       *string          `json:"location"`
	Status         *string          `json:"status"`
}

func validSide(s string) bool {
	return s == string(SideSell) || s == string(SideBuy)
}

func validListingStatus(s string) bool {
	switch ListingStatus(s) {
	case ListingActive, ListingPaused, ListingFinalized, ListingCancelled:
		return true
	}
	return false
}

// CreateListing validates and persists a new ACTIVE listing owned by ownerID.
func (s *Service) CreateListing(ctx context.Context, ownerID string, in CreateListingInput) (*Listing, error) {
	if !validSide(in.Side) {
		return nil, invalidArgument("side must be SELL or BUY")
	}
	if in.Asset == "" || len(in.Asset) > 10 {
		return nil, invalidArgument("asset is required (max 10 characters)")
	}
	if !in.Quantity.IsPositive() {
		return nil, invalidArgument("quantity must be a positive number")
	}
	if !in.UnitPrice.IsPositive() {
		return nil, invalidArgument("unit price must be a positive number")
	}
	fiat := in.Fiat
	if fiat == "" {
		fiat = "USD"
	}
	if len(fiat) != 3 {
		return nil, invalidArgument("fiat currency must be a 3-letter code")
	}
	if len(in.Description) > 1000 {
		return nil, invalidArgument("description too long (max 1000 characters)")
	}
	if len(in.Location) > 255 {
		return nil, invalidArgument("location too long (max 255 characters)")
	}

	methods := in.PaymentMethods
	if methods == nil {
		methods = []string{}
	}

	l := &Listing{
		ID:             uuid.New().String(),
		UserID:         ownerID,
		Side:           ListingSide(in.Side),
		Asset:          in.Asset,
		Quantity:       in.Quantity,
		UnitPrice:      in.UnitPrice,
		Fiat:           fiat,
		PaymentMethods: methods,
		Description:    in.Description,
		Location:       in.Location,
		Status:         ListingActive,
		CreatedAt:      time.Now(),
	}
	if err := s.listings.Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Listings returns the public feed.
func (s *Service) Listings(ctx context.Context, f ListingFilter) ([]Listing, error) {
	if f.Status != "" && !validListingStatus(f.Status) {
		return nil, invalidArgument("unknown listing status")
	}
	if f.Side != "" && !validSide(f.Side) {
		return nil, invalidArgument("side must be SELL or BUY")
	}
	return s.listings.List(ctx, f)
}

// Listing returns one listing by id.
func (s *Service) Listing(ctx context.Context, id string) (*Listing, error) {
	return s.listings.FindByID(ctx, id)
}

// OwnListings returns the caller's listings with an optional status filter.
func (s *Service) OwnListings(ctx context.Context, ownerID, status string, limit, offset int) ([]Listing, error) {
	if status != "" && !validListingStatus(status) {
		return nil, invalidArgument("unknown listing status")
	}
	return s.listings.ListByOwner(ctx, ownerID, status, limit, offset)
}

// UpdateListing applies a sparse patch to a listing the caller owns.
func (s *Service) UpdateListing(ctx context.Context, id, userID string, in UpdateListingInput) (*Listing, error) {
	existing, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, forbidden("you can only update your own listings")
	}

	fields := map[string]any{}
	if in.Side != nil {
		if !validSide(*in.Side) {
			return nil, invalidArgument("side must be SELL or BUY")
		}
		fields["side"] = *in.Side
	}
	if in.Asset != nil {
		if *in.Asset == "" || len(*in.Asset) > 10 {
			return nil, invalidArgument("asset is required (max 10 characters)")
		}
		fields["asset"] = *in.Asset
	}
	if in.Quantity != nil {
		if !in.Quantity.IsPositive() {
			return nil, invalidArgument("quantity must be a positive number")
		}
		fields["quantity"] = *in.Quantity
	}
	if in.UnitPrice != nil {
		if !in.UnitPrice.IsPositive() {
			return nil, invalidArgument("unit price must be a positive number")
		}
		fields["unit_price"] = *in.UnitPrice
	}
	if in.Fiat != nil {
		if len(*in.Fiat) != 3 {
			return nil, invalidArgument("fiat currency must be a 3-letter code")
		}
		fields["fiat"] = *in.Fiat
	}
	if in.PaymentMethods != nil {
		fields["payment_methods"] = *in.PaymentMethods
	}
	if in.Description != nil {
		if len(*in.Description) > 1000 {
			return nil, invalidArgument("description too long (max 1000 characters)")
		}
		fields["description"] = *in.Description
	}
	if in.Location != nil {
		if len(*in.Location) > 255 {
			return nil, invalidArgument("location too long (max 255 characters)")
		}
		fields["location"] = *in.Location
	}
	if in.Status != nil {
		if !validListingStatus(*in.Status) {
			return nil, invalidArgument("status must be ACTIVE, PAUSED, FINALIZED or CANCELLED")
		}
		fields["status"] = *in.Status
	}
	if len(fields) == 0 {
		return nil, invalidArgument("no fields to update")
	}

	return s.listings.Update(ctx, id, fields)
}

// DeleteListing removes a listing the caller owns.
func (s *Service) DeleteListing(ctx context.Context, id, userID string) error {
	existing, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.UserID != userID {
		return forbidden("you can only delete your own listings")
	}
	return s.listings.Delete(ctx, id)
}

// CreateTransaction executes a transaction against a listing on behalf of
// userID. Preconditions are checked in order, each with its own failure;
// on success the listing's remaining quantity has already been decremented
// (and the listing finalized if exhausted) atomically with the insert.
func (s *Service) CreateTransaction(ctx context.Context, userID, listingID string, quantity decimal.Decimal) (*Transaction, error) {
	if !quantity.IsPositive() {
		return nil, invalidArgument("quantity must be a positive number")
	}

	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != ListingActive {
		return nil, invalidState("listing is not available")
	}
	if listing.UserID == userID {
		return nil, invalidOperation("cannot transact against your own listing")
	}
	if quantity.GreaterThan(listing.Quantity) {
		return nil, insufficientQuantity("requested quantity exceeds the available amount")
	}

	// A SELL listing is an offer to sell, so the requester buys; a BUY
	// listing is a request to buy, so the requester sells.
	var buyerID, sellerID string
	if listing.Side == SideSell {
		buyerID = userID
		sellerID = listing.UserID
	} else {
		buyerID = listing.UserID
		sellerID = userID
	}

	t := &Transaction{
		ID:        uuid.New().String(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ListingID: listingID,
		Quantity:  quantity,
		Total:     quantity.Mul(listing.UnitPrice),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	t.UpdatedAt = t.CreatedAt

	if err := s.transactions.CreateWithReservation(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Transactions returns the caller's history, both sides.
func (s *Service) Transactions(ctx context.Context, userID string, f TransactionFilter) ([]TransactionDetail, error) {
	if f.Status != "" {
		if _, ok := ParseTransactionStatus(f.Status); !ok {
			return nil, invalidArgument("unknown transaction status")
		}
	}
	return s.transactions.ListForUser(ctx, userID, f)
}

// SetTransactionStatus advances a transaction along the state machine.
// Only the buyer or seller may write, the target must be one of the five
// recognized statuses, and the move must follow the legal adjacency.
func (s *Service) SetTransactionStatus(ctx context.Context, id, userID, rawStatus string, settlementHash *string) (*Transaction, error) {
	target, ok := ParseTransactionStatus(rawStatus)
	if !ok {
		return nil, invalidArgument("status must be one of PENDING, AWAITING_PAYMENT, COMPLETED, CANCELLED, DISPUTED")
	}

	t, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.BuyerID != userID && t.SellerID != userID {
		return nil, forbidden("you are not a party to this transaction")
	}
	if !CanTransition(t.Status, target) {
		return nil, invalidState("cannot move transaction from " + string(t.Status) + " to " + string(target))
	}

	return s.transactions.UpdateStatus(ctx, id, target, settlementHash)
}

// RateTransaction records one or both counterparty ratings on a completed
// transaction. Each direction may only be set by the correct party, and
// only once.
func (s *Service) RateTransaction(ctx context.Context, id, userID string, in RatingInput) (*Transaction, error) {
	t, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusCompleted {
		return nil, invalidState("only completed transactions can be rated")
	}
	if t.BuyerID != userID && t.SellerID != userID {
		return nil, forbidden("you are not a party to this transaction")
	}
	if in.BuyerRatesSeller == nil && in.SellerRatesBuyer == nil {
		return nil, invalidArgument("at least one rating is required")
	}

	if in.BuyerRatesSeller != nil {
		if *in.BuyerRatesSeller < 1 || *in.BuyerRatesSeller > 5 {
			return nil, invalidArgument("rating must be between 1 and 5")
		}
		if t.BuyerID != userID {
			return nil, forbidden("only the buyer can rate the seller")
		}
		if t.BuyerRating != nil {
			return nil, conflict("you have already rated the seller")
		}
	}
	if in.SellerRatesBuyer != nil {
		if *in.SellerRatesBuyer < 1 || *in.SellerRatesBuyer > 5 {
			return nil, invalidArgument("rating must be between 1 and 5")
		}
		if t.SellerID != userID {
			return nil, forbidden("only the seller can rate the buyer")
		}
		if t.SellerRating != nil {
			return nil, conflict("you have already rated the buyer")
		}
	}

	return s.transactions.SetRatings(ctx, id, in.BuyerRatesSeller, in.SellerRatesBuyer)
}
