package db

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arielmonte/coinbarter/internal/config"
)

// Connect opens the Postgres pool and makes sure the schema the handlers
// rely on exists. The pool is handed to the callers that need it rather
// than kept as package state; Close it on shutdown.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Println("Connected to Postgres successfully")

	ensureUsersTable(ctx, pool)
	ensureListingsTable(ctx, pool)
	ensureTransactionsTable(ctx, pool)
	ensureMessagesTable(ctx, pool)

	return pool, nil
}

// ensureUsersTable creates the users table if missing
func ensureUsersTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            phone TEXT NULL,
            country TEXT NULL,
            kyc_verified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )`)
	if err != nil {
		log.Printf("failed to ensure users table: %v", err)
	}
}

// ensureListingsTable creates the listings table if missing
func ensureListingsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS listings (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            side TEXT NOT NULL CHECK (side IN ('SELL', 'BUY')),
            asset TEXT NOT NULL,
            quantity NUMERIC(30, 8) NOT NULL CHECK (quantity >= 0),
            unit_price NUMERIC(30, 8) NOT NULL CHECK (unit_price > 0),
            fiat TEXT NOT NULL DEFAULT 'USD',
            payment_methods TEXT[] NOT NULL DEFAULT '{}',
            description TEXT NULL,
            location TEXT NULL,
            status TEXT NOT NULL DEFAULT 'ACTIVE'
                CHECK (status IN ('ACTIVE', 'PAUSED', 'FINALIZED', 'CANCELLED')),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
        CREATE INDEX IF NOT EXISTS idx_listings_user ON listings(user_id);
    `)
	if err != nil {
		log.Printf("failed to ensure listings table: %v", err)
	}
}

// ensureTransactionsTable creates the transactions table if missing
func ensureTransactionsTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS transactions (
            id UUID PRIMARY KEY,
            buyer_id UUID NOT NULL REFERENCES users(id),
            seller_id UUID NOT NULL REFERENCES users(id),
            listing_id UUID NOT NULL REFERENCES listings(id),
            quantity NUMERIC(30, 8) NOT NULL CHECK (quantity > 0),
            total NUMERIC(30, 8) NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING'
                CHECK (status IN ('PENDING', 'AWAITING_PAYMENT', 'COMPLETED', 'CANCELLED', 'DISPUTED')),
            settlement_hash TEXT NULL,
            buyer_rating INTEGER NULL CHECK (buyer_rating BETWEEN 1 AND 5),
            seller_rating INTEGER NULL CHECK (seller_rating BETWEEN 1 AND 5),
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_id);
        CREATE INDEX IF NOT EXISTS idx_transactions_seller ON transactions(seller_id);
        CREATE INDEX IF NOT EXISTS idx_transactions_listing ON transactions(listing_id);
    `)
	if err != nil {
		log.Printf("failed to ensure transactions table: %v", err)
	}
}

// ensureMessagesTable creates the messages table if missing
func ensureMessagesTable(ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            recipient_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_messages_listing ON messages(listing_id);
    `)
	if err != nil {
		log.Printf("failed to ensure messages table: %v", err)
	}
}
