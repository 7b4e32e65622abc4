package marketplace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var mErr *Error
	require.True(t, errors.As(err, &mErr), "expected *Error, got %T: %v", err, err)
	assert.Equal(t, kind, mErr.Kind)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func sellListing(t *testing.T, svc *Service, ownerID, qty, price string) *Listing {
	t.Helper()
	l, err := svc.CreateListing(context.Background(), ownerID, CreateListingInput{
		Side:           "SELL",
		Asset:          "BTC",
		Quantity:       dec(qty),
		UnitPrice:      dec(price),
		Fiat:           "USD",
		PaymentMethods: []string{"bank transfer"},
	})
	require.NoError(t, err)
	return l
}

func TestCreateListingValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateListingInput
	}{
		{"bad side", CreateListingInput{Side: "HOLD", Asset: "BTC", Quantity: dec("1"), UnitPrice: dec("1")}},
		{"missing asset", CreateListingInput{Side: "SELL", Quantity: dec("1"), UnitPrice: dec("1")}},
		{"asset too long", CreateListingInput{Side: "SELL", Asset: "SUPERLONGTOKEN", Quantity: dec("1"), UnitPrice: dec("1")}},
		{"zero quantity", CreateListingInput{Side: "SELL", Asset: "BTC", Quantity: dec("0"), UnitPrice: dec("1")}},
		{"negative quantity", CreateListingInput{Side: "SELL", Asset: "BTC", Quantity: dec("-1"), UnitPrice: dec("1")}},
		{"zero price", CreateListingInput{Side: "SELL", Asset: "BTC", Quantity: dec("1"), UnitPrice: dec("0")}},
		{"bad fiat", CreateListingInput{Side: "SELL", Asset: "BTC", Quantity: dec("1"), UnitPrice: dec("1"), Fiat: "DOLLARS"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateListing(ctx, "owner", tc.in)
			assertKind(t, err, KindInvalidArgument)
		})
	}
}

func TestCreateListingDefaults(t *testing.T) {
	svc, _, _ := newTestService()

	l, err := svc.CreateListing(context.Background(), "owner", CreateListingInput{
		Side:      "BUY",
		Asset:     "ETH",
		Quantity:  dec("10"),
		UnitPrice: dec("2500"),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", l.Fiat)
	assert.Equal(t, ListingActive, l.Status)
	assert.NotNil(t, l.PaymentMethods)
	assert.NotEmpty(t, l.ID)
}

func TestUpdateListingOwnership(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "2", "50000")

	price := dec("51000")
	_, err := svc.UpdateListing(ctx, l.ID, "mallory", UpdateListingInput{UnitPrice: &price})
	assertKind(t, err, KindForbidden)

	updated, err := svc.UpdateListing(ctx, l.ID, "alice", UpdateListingInput{UnitPrice: &price})
	require.NoError(t, err)
	assert.True(t, updated.UnitPrice.Equal(price))

	_, err = svc.UpdateListing(ctx, l.ID, "alice", UpdateListingInput{})
	assertKind(t, err, KindInvalidArgument)

	_, err = svc.UpdateListing(ctx, "missing", "alice", UpdateListingInput{UnitPrice: &price})
	assertKind(t, err, KindNotFound)
}

func TestDeleteListingOwnership(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "1", "100")

	err := svc.DeleteListing(ctx, l.ID, "mallory")
	assertKind(t, err, KindForbidden)

	require.NoError(t, svc.DeleteListing(ctx, l.ID, "alice"))

	_, err = svc.Listing(ctx, l.ID)
	assertKind(t, err, KindNotFound)
}

func TestCreateTransactionRoles(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// SELL listing: the requester buys from the owner.
	sell := sellListing(t, svc, "alice", "2", "50000")
	tx, err := svc.CreateTransaction(ctx, "bob", sell.ID, dec("1"))
	require.NoError(t, err)
	assert.Equal(t, "bob", tx.BuyerID)
	assert.Equal(t, "alice", tx.SellerID)
	assert.Equal(t, StatusPending, tx.Status)

	// BUY listing: the requester sells to the owner.
	buy, err := svc.CreateListing(ctx, "carol", CreateListingInput{
		Side: "BUY", Asset: "ETH", Quantity: dec("5"), UnitPrice: dec("2500"),
	})
	require.NoError(t, err)
	tx2, err := svc.CreateTransaction(ctx, "dave", buy.ID, dec("2"))
	require.NoError(t, err)
	assert.Equal(t, "carol", tx2.BuyerID)
	assert.Equal(t, "dave", tx2.SellerID)
}

func TestCreateTransactionTotalFixedAtCreation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "1.0", "50000")

	tx, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("0.5"))
	require.NoError(t, err)
	assert.True(t, tx.Total.Equal(dec("25000")), "total = %s", tx.Total)

	// Repricing the listing afterwards must not touch the stored total.
	price := dec("60000")
	_, err = svc.UpdateListing(ctx, l.ID, "alice", UpdateListingInput{UnitPrice: &price})
	require.NoError(t, err)

	got, err := svc.Transactions(ctx, "bob", TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Total.Equal(dec("25000")))
}

func TestCreateTransactionPreconditions(t *testing.T) {
	svc, listings, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, "bob", "no-such-listing", dec("1"))
	assertKind(t, err, KindNotFound)

	l := sellListing(t, svc, "alice", "1", "100")

	_, err = svc.CreateTransaction(ctx, "bob", l.ID, dec("0"))
	assertKind(t, err, KindInvalidArgument)

	_, err = svc.CreateTransaction(ctx, "alice", l.ID, dec("0.5"))
	assertKind(t, err, KindInvalidOperation)

	_, err = svc.CreateTransaction(ctx, "bob", l.ID, dec("1.5"))
	assertKind(t, err, KindInsufficientQuantity)

	// Pausing the listing blocks new transactions.
	paused := "PAUSED"
	_, err = svc.UpdateListing(ctx, l.ID, "alice", UpdateListingInput{Status: &paused})
	require.NoError(t, err)
	_, err = svc.CreateTransaction(ctx, "bob", l.ID, dec("0.5"))
	assertKind(t, err, KindInvalidState)

	// A failed attempt leaves the listing untouched.
	current, err := listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, current.Quantity.Equal(dec("1")))
}

func TestCreateTransactionDecrementsAndFinalizes(t *testing.T) {
	svc, listings, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "1.0", "50000")

	_, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("0.5"))
	require.NoError(t, err)

	current, err := listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, current.Quantity.Equal(dec("0.5")))
	assert.Equal(t, ListingActive, current.Status)

	// More than the remainder fails without mutating the listing.
	_, err = svc.CreateTransaction(ctx, "carol", l.ID, dec("0.6"))
	assertKind(t, err, KindInsufficientQuantity)
	current, err = listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, current.Quantity.Equal(dec("0.5")))

	// Exactly the remainder finalizes the listing.
	_, err = svc.CreateTransaction(ctx, "carol", l.ID, dec("0.5"))
	require.NoError(t, err)
	current, err = listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, current.Quantity.IsZero())
	assert.Equal(t, ListingFinalized, current.Status)

	// Finalized listings reject further transactions.
	_, err = svc.CreateTransaction(ctx, "dave", l.ID, dec("0.1"))
	assertKind(t, err, KindInvalidState)
}

func TestCreateTransactionNoOversell(t *testing.T) {
	svc, listings, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "10", "100")

	// 40 concurrent buyers asking for 1 each against a quantity of 10:
	// at most 10 may succeed and the listing must never go negative.
	const buyers = 40
	results := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := fmt.Sprintf("buyer-%d", i)
			_, results[i] = svc.CreateTransaction(ctx, buyer, l.ID, dec("1"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 10, succeeded)

	current, err := listings.FindByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, current.Quantity.IsZero(), "remaining = %s", current.Quantity)
	assert.Equal(t, ListingFinalized, current.Status)
}

func TestTransactionsFilter(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "10", "100")

	_, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("1"))
	require.NoError(t, err)

	// bob bought, alice sold; role filters pick the right side.
	purchases, err := svc.Transactions(ctx, "bob", TransactionFilter{Role: "purchases"})
	require.NoError(t, err)
	assert.Len(t, purchases, 1)

	sales, err := svc.Transactions(ctx, "bob", TransactionFilter{Role: "sales"})
	require.NoError(t, err)
	assert.Empty(t, sales)

	sales, err = svc.Transactions(ctx, "alice", TransactionFilter{Role: "sales"})
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	none, err := svc.Transactions(ctx, "stranger", TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.Transactions(ctx, "bob", TransactionFilter{Status: "SHIPPED"})
	assertKind(t, err, KindInvalidArgument)
}

func TestSetTransactionStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "10", "100")
	tx, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("1"))
	require.NoError(t, err)

	_, err = svc.SetTransactionStatus(ctx, "missing", "bob", "CANCELLED", nil)
	assertKind(t, err, KindNotFound)

	_, err = svc.SetTransactionStatus(ctx, tx.ID, "mallory", "CANCELLED", nil)
	assertKind(t, err, KindForbidden)

	_, err = svc.SetTransactionStatus(ctx, tx.ID, "bob", "SHIPPED", nil)
	assertKind(t, err, KindInvalidArgument)

	// Skipping AWAITING_PAYMENT is not allowed.
	_, err = svc.SetTransactionStatus(ctx, tx.ID, "bob", "COMPLETED", nil)
	assertKind(t, err, KindInvalidState)

	updated, err := svc.SetTransactionStatus(ctx, tx.ID, "bob", "AWAITING_PAYMENT", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingPayment, updated.Status)

	hash := "0xabc123"
	updated, err = svc.SetTransactionStatus(ctx, tx.ID, "alice", "COMPLETED", &hash)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	require.NotNil(t, updated.SettlementHash)
	assert.Equal(t, hash, *updated.SettlementHash)

	// COMPLETED is terminal.
	_, err = svc.SetTransactionStatus(ctx, tx.ID, "bob", "DISPUTED", nil)
	assertKind(t, err, KindInvalidState)
}

func completedTransaction(t *testing.T, svc *Service) *Transaction {
	t.Helper()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "10", "100")
	tx, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("1"))
	require.NoError(t, err)
	_, err = svc.SetTransactionStatus(ctx, tx.ID, "bob", "AWAITING_PAYMENT", nil)
	require.NoError(t, err)
	_, err = svc.SetTransactionStatus(ctx, tx.ID, "alice", "COMPLETED", nil)
	require.NoError(t, err)
	return tx
}

func TestRateTransaction(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	tx := completedTransaction(t, svc)
	five, three, seven := 5, 3, 7

	_, err := svc.RateTransaction(ctx, "missing", "bob", RatingInput{BuyerRatesSeller: &five})
	assertKind(t, err, KindNotFound)

	_, err = svc.RateTransaction(ctx, tx.ID, "mallory", RatingInput{BuyerRatesSeller: &five})
	assertKind(t, err, KindForbidden)

	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{})
	assertKind(t, err, KindInvalidArgument)

	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{BuyerRatesSeller: &seven})
	assertKind(t, err, KindInvalidArgument)

	// The seller cannot write the buyer's rating and vice versa.
	_, err = svc.RateTransaction(ctx, tx.ID, "alice", RatingInput{BuyerRatesSeller: &five})
	assertKind(t, err, KindForbidden)
	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{SellerRatesBuyer: &five})
	assertKind(t, err, KindForbidden)

	rated, err := svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{BuyerRatesSeller: &five})
	require.NoError(t, err)
	require.NotNil(t, rated.BuyerRating)
	assert.Equal(t, 5, *rated.BuyerRating)
	assert.Nil(t, rated.SellerRating)

	// Each direction can only be written once.
	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{BuyerRatesSeller: &three})
	assertKind(t, err, KindConflict)

	rated, err = svc.RateTransaction(ctx, tx.ID, "alice", RatingInput{SellerRatesBuyer: &three})
	require.NoError(t, err)
	require.NotNil(t, rated.SellerRating)
	assert.Equal(t, 3, *rated.SellerRating)
	require.NotNil(t, rated.BuyerRating)
	assert.Equal(t, 5, *rated.BuyerRating)
}

func TestRateTransactionRequiresCompleted(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	l := sellListing(t, svc, "alice", "10", "100")
	tx, err := svc.CreateTransaction(ctx, "bob", l.ID, dec("1"))
	require.NoError(t, err)

	five := 5
	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{BuyerRatesSeller: &five})
	assertKind(t, err, KindInvalidState)

	_, err = svc.SetTransactionStatus(ctx, tx.ID, "bob", "AWAITING_PAYMENT", nil)
	require.NoError(t, err)
	_, err = svc.RateTransaction(ctx, tx.ID, "bob", RatingInput{BuyerRatesSeller: &five})
	assertKind(t, err, KindInvalidState)
}

func TestListingsFeedFilters(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sellListing(t, svc, "alice", "1", "50000")
	_, err := svc.CreateListing(ctx, "bob", CreateListingInput{
		Side: "BUY", Asset: "ETH", Quantity: dec("5"), UnitPrice: dec("2500"), Location: "Buenos Aires",
	})
	require.NoError(t, err)

	all, err := svc.Listings(ctx, ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sells, err := svc.Listings(ctx, ListingFilter{Side: "SELL"})
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, "BTC", sells[0].Asset)

	located, err := svc.Listings(ctx, ListingFilter{Location: "buenos"})
	require.NoError(t, err)
	require.Len(t, located, 1)
	assert.Equal(t, "ETH", located[0].Asset)

	_, err = svc.Listings(ctx, ListingFilter{Side: "SIDEWAYS"})
	assertKind(t, err, KindInvalidArgument)

	_, err = svc.Listings(ctx, ListingFilter{Status: "GONE"})
	assertKind(t, err, KindInvalidArgument)
}
