package repository

import (
	"fmt"
	"sync"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
)

// AccountStore defines credit-balance persistence for the auction system
type AccountStore interface {
	CreateAccount(account model.Account) error
	GetAccount(holderName string) (model.Account, error)
	// AdjustBalance applies delta to the holder's balance. It fails with
	// ErrInsufficientFunds and leaves the balance untouched if the result
	// would be negative.
	AdjustBalance(holderName string, delta int64) error
}

// AuctionDB defines listing and bid persistence for the auction system
type AuctionDB interface {
	CreateListing(listing model.Listing) error
	GetListing(listingID string) (model.Listing, error)
	ListListings() ([]model.Listing, error)
	AppendBid(bid model.Bid) error
	ListBids(listingID string) ([]model.Bid, error)
	MarkBidRefunded(bidID string) error
	UpdateListingStatus(listingID string, status model.ListingStatus, winnerName *string) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of
// AccountStore and AuctionDB
type MemoryRepo struct {
	mu       sync.RWMutex
	accounts map[string]model.Account // key: holderName
	listings map[string]model.Listing // key: listingID
	bids     map[string][]model.Bid   // key: listingID -> bids in placement order
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		accounts: make(map[string]model.Account),
		listings: make(map[string]model.Listing),
		bids:     make(map[string][]model.Bid),
	}
}

// CreateAccount stores a new account
func (r *MemoryRepo) CreateAccount(account model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.HolderName]; ok {
		return fmt.Errorf("create account %s: %w", account.HolderName, auctionerrors.ErrAccountExists)
	}
	r.accounts[account.HolderName] = account
	return nil
}

// GetAccount returns the account for a holder
func (r *MemoryRepo) GetAccount(holderName string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[holderName]
	if !ok {
		return model.Account{}, fmt.Errorf("get account %s: %w", holderName, auctionerrors.ErrAccountNotFound)
	}
	return account, nil
}

// AdjustBalance applies delta to a holder's balance, refusing any
// adjustment that would drive the balance negative
func (r *MemoryRepo) AdjustBalance(holderName string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[holderName]
	if !ok {
		return fmt.Errorf("adjust balance for %s: %w", holderName, auctionerrors.ErrAccountNotFound)
	}
	if account.CreditBalance+delta < 0 {
		return fmt.Errorf("adjust balance for %s by %d: %w", holderName, delta, auctionerrors.ErrInsufficientFunds)
	}
	account.CreditBalance += delta
	r.accounts[holderName] = account
	return nil
}

// CreateListing stores a new listing
func (r *MemoryRepo) CreateListing(listing model.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listings[listing.ListingID] = listing
	return nil
}

// GetListing returns a listing by id
func (r *MemoryRepo) GetListing(listingID string) (model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, auctionerrors.ErrListingNotFound)
	}
	return listing, nil
}

// ListListings returns all listings
func (r *MemoryRepo) ListListings() ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := make([]model.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		listings = append(listings, l)
	}
	return listings, nil
}

// AppendBid records a bid against its listing
func (r *MemoryRepo) AppendBid(bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[bid.ListingID]; !ok {
		return fmt.Errorf("append bid for listing %s: %w", bid.ListingID, auctionerrors.ErrListingNotFound)
	}
	r.bids[bid.ListingID] = append(r.bids[bid.ListingID], bid)
	return nil
}

// ListBids returns all bids for a listing in placement order. A listing
// with no bids yields an empty slice, not an error.
func (r *MemoryRepo) ListBids(listingID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, fmt.Errorf("list bids for listing %s: %w", listingID, auctionerrors.ErrListingNotFound)
	}
	return append([]model.Bid(nil), r.bids[listingID]...), nil
}

// MarkBidRefunded records that a bid's escrow has been returned
func (r *MemoryRepo) MarkBidRefunded(bidID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for listingID, bids := range r.bids {
		for i := range bids {
			if bids[i].BidID == bidID {
				bids[i].Refunded = true
				r.bids[listingID] = bids
				return nil
			}
		}
	}
	return fmt.Errorf("mark bid %s refunded: %w", bidID, auctionerrors.ErrBidNotFound)
}

// UpdateListingStatus sets a listing's status and, when settling with a
// winner, its winner name
func (r *MemoryRepo) UpdateListingStatus(listingID string, status model.ListingStatus, winnerName *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return fmt.Errorf("update status for listing %s: %w", listingID, auctionerrors.ErrListingNotFound)
	}
	listing.Status = status
	listing.WinnerName = winnerName
	r.listings[listingID] = listing
	return nil
}
