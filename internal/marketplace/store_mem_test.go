package marketplace

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// In-memory stores used by the service tests. memListingStore serializes
// reservation through its mutex the same way the SQL store does through
// the conditional update, so the concurrency properties hold here too.

type memListingStore struct {
	mu       sync.Mutex
	listings map[string]Listing
}

func newMemListingStore() *memListingStore {
	return &memListingStore{listings: make(map[string]Listing)}
}

func (s *memListingStore) Insert(_ context.Context, l *Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = *l
	return nil
}

func (s *memListingStore) FindByID(_ context.Context, id string) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	out := l
	return &out, nil
}

func (s *memListingStore) List(_ context.Context, f ListingFilter) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := f.Status
	if status == "" {
		status = string(ListingActive)
	}
	var out []Listing
	for _, l := range s.listings {
		if string(l.Status) != status {
			continue
		}
		if f.Side != "" && string(l.Side) != f.Side {
			continue
		}
		if f.Asset != "" && l.Asset != f.Asset {
			continue
		}
		if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memListingStore) ListByOwner(_ context.Context, ownerID, status string, _, _ int) ([]Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Listing
	for _, l := range s.listings {
		if l.UserID != ownerID {
			continue
		}
		if status != "" && string(l.Status) != status {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memListingStore) Update(_ context.Context, id string, fields map[string]any) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	for field, value := range fields {
		switch field {
		case "side":
			l.Side = ListingSide(value.(string))
		case "asset":
			l.Asset = value.(string)
		case "quantity":
			l.Quantity = value.(decimal.Decimal)
		case "unit_price":
			l.UnitPrice = value.(decimal.Decimal)
		case "fiat":
			l.Fiat = value.(string)
		case "payment_methods":
			l.PaymentMethods = value.([]string)
		case "description":
			l.Description = value.(string)
		case "location":
			l.Location = value.(string)
		case "status":
			l.Status = ListingStatus(value.(string))
		default:
			return nil, invalidArgument("unknown field: " + field)
		}
	}
	s.listings[id] = l
	out := l
	return &out, nil
}

func (s *memListingStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return ErrListingNotFound
	}
	delete(s.listings, id)
	return nil
}

type memTransactionStore struct {
	mu           sync.Mutex
	listings     *memListingStore
	transactions map[string]Transaction
}

func newMemTransactionStore(listings *memListingStore) *memTransactionStore {
	return &memTransactionStore{
		listings:     listings,
		transactions: make(map[string]Transaction),
	}
}

func (s *memTransactionStore) CreateWithReservation(_ context.Context, t *Transaction) error {
	s.listings.mu.Lock()
	defer s.listings.mu.Unlock()

	l, ok := s.listings.listings[t.ListingID]
	if !ok || l.Status != ListingActive || l.Quantity.LessThan(t.Quantity) {
		return ErrReservationConflict
	}

	remaining := l.Quantity.Sub(t.Quantity)
	if remaining.Sign() <= 0 {
		l.Quantity = decimal.Zero
		l.Status = ListingFinalized
	} else {
		l.Quantity = remaining
	}
	s.listings.listings[t.ListingID] = l

	s.mu.Lock()
	s.transactions[t.ID] = *t
	s.mu.Unlock()
	return nil
}

func (s *memTransactionStore) FindByID(_ context.Context, id string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	out := t
	return &out, nil
}

func (s *memTransactionStore) ListForUser(_ context.Context, userID string, f TransactionFilter) ([]TransactionDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TransactionDetail
	for _, t := range s.transactions {
		if t.BuyerID != userID && t.SellerID != userID {
			continue
		}
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if f.Role == "purchases" && t.BuyerID != userID {
			continue
		}
		if f.Role == "sales" && t.SellerID != userID {
			continue
		}
		out = append(out, TransactionDetail{Transaction: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memTransactionStore) UpdateStatus(_ context.Context, id string, status TransactionStatus, settlementHash *string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	t.Status = status
	if settlementHash != nil {
		t.SettlementHash = settlementHash
	}
	s.transactions[id] = t
	out := t
	return &out, nil
}

func (s *memTransactionStore) SetRatings(_ context.Context, id string, buyerRating, sellerRating *int) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	if buyerRating != nil {
		t.BuyerRating = buyerRating
	}
	if sellerRating != nil {
		t.SellerRating = sellerRating
	}
	s.transactions[id] = t
	out := t
	return &out, nil
}

// newTestService wires a service over fresh in-memory stores.
func newTestService() (*Service, *memListingStore, *memTransactionStore) {
	listings := newMemListingStore()
	transactions := newMemTransactionStore(listings)
	return NewService(listings, transactions), listings, transactions
}
