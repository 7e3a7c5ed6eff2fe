package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

// SQLRepo is a MySQL-backed implementation of AccountStore and
// AuctionDB. Balance mutations run inside a transaction with a
// SELECT ... FOR UPDATE row lock, so the non-negative-balance check and
// the update are atomic per account.
type SQLRepo struct {
	db *sql.DB
}

// OpenMySQL connects to MySQL with the given DSN and verifies the
// connection
func OpenMySQL(dsn string) (*SQLRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return &SQLRepo{db: db}, nil
}

// Migrate creates the auction tables if they do not exist
func (r *SQLRepo) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			holder_name VARCHAR(255) PRIMARY KEY,
			credit_balance BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			listing_id CHAR(36) PRIMARY KEY,
			seller_name VARCHAR(255) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			ends_at DATETIME(6) NOT NULL,
			status VARCHAR(16) NOT NULL,
			winner_name VARCHAR(255) NULL,
			created_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bids (
			bid_id CHAR(36) PRIMARY KEY,
			listing_id CHAR(36) NOT NULL,
			bidder_name VARCHAR(255) NOT NULL,
			amount BIGINT NOT NULL,
			placed_at DATETIME(6) NOT NULL,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_bids_listing (listing_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool
func (r *SQLRepo) Close() error {
	return r.db.Close()
}

// CreateAccount stores a new account
func (r *SQLRepo) CreateAccount(account model.Account) error {
	_, err := r.db.Exec(
		`INSERT INTO accounts (holder_name, credit_balance) VALUES (?, ?)`,
		account.HolderName, account.CreditBalance,
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.HolderName, err)
	}
	return nil
}

// GetAccount returns the account for a holder
func (r *SQLRepo) GetAccount(holderName string) (model.Account, error) {
	var account model.Account
	row := r.db.QueryRow(
		`SELECT holder_name, credit_balance FROM accounts WHERE holder_name = ?`,
		holderName,
	)
	if err := row.Scan(&account.HolderName, &account.CreditBalance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, fmt.Errorf("get account %s: %w", holderName, auctionerrors.ErrAccountNotFound)
		}
		return model.Account{}, fmt.Errorf("get account %s: %w", holderName, err)
	}
	return account, nil
}

// AdjustBalance applies delta to a holder's balance under a row lock,
// refusing any adjustment that would drive the balance negative
func (r *SQLRepo) AdjustBalance(holderName string, delta int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("adjust balance for %s: %w", holderName, err)
	}
	defer tx.Rollback()

	var balance int64
	row := tx.QueryRow(
		`SELECT credit_balance FROM accounts WHERE holder_name = ? FOR UPDATE`,
		holderName,
	)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("adjust balance for %s: %w", holderName, auctionerrors.ErrAccountNotFound)
		}
		return fmt.Errorf("adjust balance for %s: %w", holderName, err)
	}
	if balance+delta < 0 {
		return fmt.Errorf("adjust balance for %s by %d: %w", holderName, delta, auctionerrors.ErrInsufficientFunds)
	}

	if _, err := tx.Exec(
		`UPDATE accounts SET credit_balance = ? WHERE holder_name = ?`,
		balance+delta, holderName,
	); err != nil {
		return fmt.Errorf("adjust balance for %s: %w", holderName, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("adjust balance for %s: %w", holderName, err)
	}
	return nil
}

// CreateListing stores a new listing
func (r *SQLRepo) CreateListing(listing model.Listing) error {
	_, err := r.db.Exec(
		`INSERT INTO listings (listing_id, seller_name, title, description, ends_at, status, winner_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		listing.ListingID, listing.SellerName, listing.Title, listing.Description,
		listing.EndsAt, listing.Status, listing.WinnerName, listing.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create listing %s: %w", listing.ListingID, err)
	}
	return nil
}

// GetListing returns a listing by id
func (r *SQLRepo) GetListing(listingID string) (model.Listing, error) {
	row := r.db.QueryRow(
		`SELECT listing_id, seller_name, title, description, ends_at, status, winner_name, created_at
		 FROM listings WHERE listing_id = ?`,
		listingID,
	)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, auctionerrors.ErrListingNotFound)
		}
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, err)
	}
	return listing, nil
}

// ListListings returns all listings
func (r *SQLRepo) ListListings() ([]model.Listing, error) {
	rows, err := r.db.Query(
		`SELECT listing_id, seller_name, title, description, ends_at, status, winner_name, created_at
		 FROM listings ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("list listings: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// AppendBid records a bid against its listing
func (r *SQLRepo) AppendBid(bid model.Bid) error {
	if _, err := r.GetListing(bid.ListingID); err != nil {
		return fmt.Errorf("append bid: %w", err)
	}
	_, err := r.db.Exec(
		`INSERT INTO bids (bid_id, listing_id, bidder_name, amount, placed_at, refunded)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bid.BidID, bid.ListingID, bid.BidderName, bid.Amount, bid.PlacedAt, bid.Refunded,
	)
	if err != nil {
		return fmt.Errorf("append bid %s: %w", bid.BidID, err)
	}
	return nil
}

// ListBids returns all bids for a listing in placement order
func (r *SQLRepo) ListBids(listingID string) ([]model.Bid, error) {
	if _, err := r.GetListing(listingID); err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}

	rows, err := r.db.Query(
		`SELECT bid_id, listing_id, bidder_name, amount, placed_at, refunded
		 FROM bids WHERE listing_id = ? ORDER BY placed_at ASC`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bids for %s: %w", listingID, err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		var bid model.Bid
		if err := rows.Scan(&bid.BidID, &bid.ListingID, &bid.BidderName, &bid.Amount, &bid.PlacedAt, &bid.Refunded); err != nil {
			return nil, fmt.Errorf("list bids for %s: %w", listingID, err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bids for %s: %w", listingID, err)
	}
	return bids, nil
}

// MarkBidRefunded records that a bid's escrow has been returned
func (r *SQLRepo) MarkBidRefunded(bidID string) error {
	result, err := r.db.Exec(`UPDATE bids SET refunded = TRUE WHERE bid_id = ?`, bidID)
	if err != nil {
		return fmt.Errorf("mark bid %s refunded: %w", bidID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark bid %s refunded: %w", bidID, err)
	}
	if affected == 0 {
		return fmt.Errorf("mark bid %s refunded: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	return nil
}

// UpdateListingStatus sets a listing's status and winner name
func (r *SQLRepo) UpdateListingStatus(listingID string, status model.ListingStatus, winnerName *string) error {
	result, err := r.db.Exec(
		`UPDATE listings SET status = ?, winner_name = ? WHERE listing_id = ?`,
		status, winnerName, listingID,
	)
	if err != nil {
		return fmt.Errorf("update status for listing %s: %w", listingID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status for listing %s: %w", listingID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update status for listing %s: %w", listingID, auctionerrors.ErrListingNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (model.Listing, error) {
	var listing model.Listing
	var winner sql.NullString
	err := row.Scan(
		&listing.ListingID, &listing.SellerName, &listing.Title, &listing.Description,
		&listing.EndsAt, &listing.Status, &winner, &listing.CreatedAt,
	)
	if err != nil {
		return model.Listing{}, err
	}
	if winner.Valid {
		listing.WinnerName = &winner.String
	}
	return listing, nil
}
