package marketplace

import "context"

// ListingStore persists listings. FindByID returns ErrListingNotFound
// when the id matches nothing.
type ListingStore interface {
	Insert(ctx context.Context, l *Listing) error
	FindByID(ctx context.Context, id string) (*Listing, error)
	List(ctx context.Context, f ListingFilter) ([]Listing, error)
	ListByOwner(ctx context.Context, ownerID, status string, limit, offset int) ([]Listing, error)
	// Update applies a sparse column patch in a single statement. Only
	// whitelisted columns are accepted.
	Update(ctx context.Context, id string, fields map[string]any) (*Listing, error)
	Delete(ctx context.Context, id string) error
}

// TransactionStore persists transactions. CreateWithReservation inserts
// the transaction and decrements the listing's remaining quantity as one
// atomic unit: if the listing is no longer ACTIVE or its quantity no
// longer covers the request, nothing is written and
// ErrReservationConflict is returned.
type TransactionStore interface {
	CreateWithReservation(ctx context.Context, t *Transaction) error
	FindByID(ctx context.Context, id string) (*Transaction, error)
	ListForUser(ctx context.Context, userID string, f TransactionFilter) ([]TransactionDetail, error)
	UpdateStatus(ctx context.Context, id string, status TransactionStatus, settlementHash *string) (*Transaction, error)
	SetRatings(ctx context.Context, id string, buyerRating, sellerRating *int) (*Transaction, error)
}
