package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// listingColumns is the whitelist for sparse listing updates, keyed by
// the JSON field name handlers accept.
var listingColumns = map[string]string{
	"side":            "side",
	"asset":           "asset",
	"quantity":        "quantity",
	"unit_price":      "unit_price",
	"fiat":            "fiat",
	"payment_methods": "payment_methods",
	"description":     "description",
	"location":        "location",
	"status":          "status",
}

// PgListingStore is the Postgres-backed ListingStore.
type PgListingStore struct {
	pool *pgxpool.Pool
}

func NewPgListingStore(pool *pgxpool.Pool) *PgListingStore {
	return &PgListingStore{pool: pool}
}

const listingSelect = `
    SELECT l.id, l.user_id, u.username, l.side, l.asset, l.quantity, l.unit_price,
           l.fiat, l.payment_methods, COALESCE(l.description, ''), COALESCE(l.location, ''),
           l.status, l.created_at
    FROM listings l
    JOIN users u ON l.user_id = u.id`

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ID, &l.UserID, &l.Username, &l.Side, &l.Asset, &l.Quantity, &l.UnitPrice,
		&l.Fiat, &l.PaymentMethods, &l.Description, &l.Location, &l.Status, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (s *PgListingStore) Insert(ctx context.Context, l *Listing) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listings
         (id, user_id, side, asset, quantity, unit_price, fiat, payment_methods, description, location, status, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		l.ID, l.UserID, l.Side, l.Asset, l.Quantity, l.UnitPrice, l.Fiat,
		l.PaymentMethods, l.Description, l.Location, l.Status, l.CreatedAt,
	)
	return err
}

func (s *PgListingStore) FindByID(ctx context.Context, id string) (*Listing, error) {
	return scanListing(s.pool.QueryRow(ctx, listingSelect+` WHERE l.id = $1`, id))
}

func (s *PgListingStore) List(ctx context.Context, f ListingFilter) ([]Listing, error) {
	query := listingSelect + ` WHERE 1=1`
	var args []any
	paramCount := 1

	if f.Side != "" {
		query += fmt.Sprintf(" AND l.side = $%d", paramCount)
		args = append(args, f.Side)
		paramCount++
	}
	if f.Asset != "" {
		query += fmt.Sprintf(" AND l.asset = $%d", paramCount)
		args = append(args, f.Asset)
		paramCount++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND l.status = $%d", paramCount)
		args = append(args, f.Status)
		paramCount++
	} else {
		// Public feed defaults to active listings only.
		query += " AND l.status = 'ACTIVE'"
	}
	if f.PaymentMethod != "" {
		query += fmt.Sprintf(` AND EXISTS (
            SELECT 1 FROM unnest(l.payment_methods) AS m(method)
            WHERE LOWER(m.method) = LOWER($%d))`, paramCount)
		args = append(args, strings.TrimSpace(f.PaymentMethod))
		paramCount++
	}
	if f.Location != "" {
		query += fmt.Sprintf(" AND l.location ILIKE $%d", paramCount)
		args = append(args, "%"+strings.TrimSpace(f.Location)+"%")
		paramCount++
	}

	query += " ORDER BY l.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramCount, paramCount+1)
	args = append(args, f.Limit, f.Offset)

	return s.queryListings(ctx, query, args...)
}

func (s *PgListingStore) ListByOwner(ctx context.Context, ownerID, status string, limit, offset int) ([]Listing, error) {
	query := listingSelect + ` WHERE l.user_id = $1`
	args := []any{ownerID}
	paramCount := 2

	if status != "" {
		query += fmt.Sprintf(" AND l.status = $%d", paramCount)
		args = append(args, status)
		paramCount++
	}
	query += " ORDER BY l.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramCount, paramCount+1)
	args = append(args, limit, offset)

	return s.queryListings(ctx, query, args...)
}

func (s *PgListingStore) queryListings(ctx context.Context, query string, args ...any) ([]Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Username, &l.Side, &l.Asset, &l.Quantity, &l.UnitPrice,
			&l.Fiat, &l.PaymentMethods, &l.Description, &l.Location, &l.Status, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PgListingStore) Update(ctx context.Context, id string, fields map[string]any) (*Listing, error) {
	var sets []string
	var values []any
	paramCount := 1

	for field, value := range fields {
		col, ok := listingColumns[field]
		if !ok {
			return nil, invalidArgument("unknown field: " + field)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, paramCount))
		values = append(values, value)
		paramCount++
	}
	if len(sets) == 0 {
		return nil, invalidArgument("no fields to update")
	}
	values = append(values, id)

	query := fmt.Sprintf(
		`UPDATE listings SET %s WHERE id = $%d RETURNING id`,
		strings.Join(sets, ", "), paramCount,
	)

	var updated string
	if err := s.pool.QueryRow(ctx, query, values...).Scan(&updated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *PgListingStore) Delete(ctx context.Context, id string) error {
	res, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// PgTransactionStore is the Postgres-backed TransactionStore.
type PgTransactionStore struct {
	pool *pgxpool.Pool
}

func NewPgTransactionStore(pool *pgxpool.Pool) *PgTransactionStore {
	return &PgTransactionStore{pool: pool}
}

// CreateWithReservation inserts the transaction and applies the quantity
// decrement in one database transaction. The decrement re-checks the
// listing's status and remaining quantity, so two concurrent creations
// against the same quantity cannot both succeed: the loser matches zero
// rows and the whole unit rolls back with ErrReservationConflict.
func (s *PgTransactionStore) CreateWithReservation(ctx context.Context, t *Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions
         (id, buyer_id, seller_id, listing_id, quantity, total, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		t.ID, t.BuyerID, t.SellerID, t.ListingID, t.Quantity, t.Total, t.Status, t.CreatedAt,
	)
	if err != nil {
		return err
	}

	// Clamp at zero and finalize in the same statement so the listing can
	// never go negative or stay ACTIVE with nothing left.
	res, err := tx.Exec(ctx,
		`UPDATE listings
         SET quantity = GREATEST(quantity - $1, 0),
             status = CASE WHEN quantity - $1 <= 0 THEN 'FINALIZED' ELSE status END
         WHERE id = $2 AND status = 'ACTIVE' AND quantity >= $1`,
		t.Quantity, t.ListingID,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrReservationConflict
	}

	return tx.Commit(ctx)
}

const transactionSelect = `
    SELECT id, buyer_id, seller_id, listing_id, quantity, total, status,
           settlement_hash, buyer_rating, seller_rating, created_at, updated_at
    FROM transactions`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.BuyerID, &t.SellerID, &t.ListingID, &t.Quantity, &t.Total, &t.Status,
		&t.SettlementHash, &t.BuyerRating, &t.SellerRating, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *PgTransactionStore) FindByID(ctx context.Context, id string) (*Transaction, error) {
	return scanTransaction(s.pool.QueryRow(ctx, transactionSelect+` WHERE id = $1`, id))
}

func (s *PgTransactionStore) ListForUser(ctx context.Context, userID string, f TransactionFilter) ([]TransactionDetail, error) {
	query := `
        SELECT t.id, t.buyer_id, t.seller_id, t.listing_id, t.quantity, t.total, t.status,
               t.settlement_hash, t.buyer_rating, t.seller_rating, t.created_at, t.updated_at,
               COALESCE(b.username, ''), COALESCE(v.username, ''),
               COALESCE(l.asset, ''), COALESCE(l.side, '')
        FROM transactions t
        LEFT JOIN users b ON t.buyer_id = b.id
        LEFT JOIN users v ON t.seller_id = v.id
        LEFT JOIN listings l ON t.listing_id = l.id
        WHERE (t.buyer_id = $1 OR t.seller_id = $1)`
	args := []any{userID}
	paramCount := 2

	if f.Status != "" {
		query += fmt.Sprintf(" AND t.status = $%d", paramCount)
		args = append(args, f.Status)
		paramCount++
	}
	switch f.Role {
	case "purchases":
		query += " AND t.buyer_id = $1"
	case "sales":
		query += " AND t.seller_id = $1"
	}

	query += " ORDER BY t.created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramCount, paramCount+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []TransactionDetail
	for rows.Next() {
		var d TransactionDetail
		if err := rows.Scan(
			&d.ID, &d.BuyerID, &d.SellerID, &d.ListingID, &d.Quantity, &d.Total, &d.Status,
			&d.SettlementHash, &d.BuyerRating, &d.SellerRating, &d.CreatedAt, &d.UpdatedAt,
			&d.BuyerUsername, &d.SellerUsername, &d.ListingAsset, &d.ListingSide,
		); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *PgTransactionStore) UpdateStatus(ctx context.Context, id string, status TransactionStatus, settlementHash *string) (*Transaction, error) {
	sets := []string{"status = $1", "updated_at = NOW()"}
	values := []any{status}
	paramCount := 2

	if settlementHash != nil {
		sets = append(sets, fmt.Sprintf("settlement_hash = $%d", paramCount))
		values = append(values, *settlementHash)
		paramCount++
	}
	values = append(values, id)

	query := fmt.Sprintf(
		`UPDATE transactions SET %s WHERE id = $%d
         RETURNING id, buyer_id, seller_id, listing_id, quantity, total, status,
                   settlement_hash, buyer_rating, seller_rating, created_at, updated_at`,
		strings.Join(sets, ", "), paramCount,
	)
	return scanTransaction(s.pool.QueryRow(ctx, query, values...))
}

func (s *PgTransactionStore) SetRatings(ctx context.Context, id string, buyerRating, sellerRating *int) (*Transaction, error) {
	var sets []string
	var values []any
	paramCount := 1

	if buyerRating != nil {
		sets = append(sets, fmt.Sprintf("buyer_rating = $%d", paramCount))
		values = append(values, *buyerRating)
		paramCount++
	}
	if sellerRating != nil {
		sets = append(sets, fmt.Sprintf("seller_rating = $%d", paramCount))
		values = append(values, *sellerRating)
		paramCount++
	}
	if len(sets) == 0 {
		return nil, invalidArgument("no ratings to update")
	}
	sets = append(sets, "updated_at = NOW()")
	values = append(values, id)

	query := fmt.Sprintf(
		`UPDATE transactions SET %s WHERE id = $%d
         RETURNING id, buyer_id, seller_id, listing_id, quantity, total, status,
                   settlement_hash, buyer_rating, seller_rating, created_at, updated_at`,
		strings.Join(sets, ", "), paramCount,
	)
	return scanTransaction(s.pool.QueryRow(ctx, query, values...))
}
