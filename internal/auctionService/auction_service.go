package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/ledger"
	"auction-house/internal/models"
	"auction-house/internal/repository"
	"auction-house/utils"
)

// StartingBalance is the credit balance granted to every new account
const StartingBalance int64 = 1000

// JobScheduler defines the deferred-job facility the service uses to
// arrange settlement at a listing's end time
type JobScheduler interface {
	Schedule(listingID string, at time.Time)
	Cancel(listingID string)
}

// AuctionService implements the bidding and deferred-settlement rules.
// All transitions of a single listing (bid admission, settlement,
// cancellation) are serialized by that listing's lock; credit movement
// is delegated to the ledger, which locks per account. The listing lock
// is always taken before any account lock.
type AuctionService struct {
	repo      repository.AuctionDB
	accounts  repository.AccountStore
	ledger    *ledger.Ledger
	scheduler JobScheduler

	mu    sync.Mutex
	locks map[string]*sync.Mutex // key: listingID

	now func() time.Time
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(repo repository.AuctionDB, accounts repository.AccountStore, led *ledger.Ledger, sched JobScheduler) *AuctionService {
	return &AuctionService{
		repo:      repo,
		accounts:  accounts,
		ledger:    led,
		scheduler: sched,
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// listingLock returns the mutex guarding a single listing's lifecycle
func (s *AuctionService) listingLock(listingID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[listingID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[listingID] = lock
	}
	return lock
}

// CreateAccount creates an account for a new user with the fixed
// starting balance
func (s *AuctionService) CreateAccount(holderName string) (models.Account, error) {
	if holderName == "" {
		return models.Account{}, fmt.Errorf("service: %w - empty holder name", auctionerrors.ErrInvalidListing)
	}

	account := models.Account{
		HolderName:    holderName,
		CreditBalance: StartingBalance,
	}
	if err := s.accounts.CreateAccount(account); err != nil {
		return models.Account{}, fmt.Errorf("service: failed to create account for %s: %w", holderName, err)
	}
	return account, nil
}

// GetBalance returns a holder's current spendable balance
func (s *AuctionService) GetBalance(holderName string) (int64, error) {
	balance, err := s.ledger.Balance(holderName)
	if err != nil {
		return 0, fmt.Errorf("service: failed to get balance for %s: %w", holderName, err)
	}
	return balance, nil
}

// CreateListing creates an active listing and registers its deferred
// settlement at endsAt
func (s *AuctionService) CreateListing(sellerName, title, description string, endsAt time.Time) (models.Listing, error) {
	if sellerName == "" || title == "" {
		return models.Listing{}, fmt.Errorf("service: %w - missing seller or title", auctionerrors.ErrInvalidListing)
	}
	if !endsAt.After(s.now()) {
		return models.Listing{}, fmt.Errorf("service: %w - end time is not in the future", auctionerrors.ErrInvalidListing)
	}
	if _, err := s.accounts.GetAccount(sellerName); err != nil {
		return models.Listing{}, fmt.Errorf("service: seller account check for %s: %w", sellerName, err)
	}

	listing := models.Listing{
		ListingID:   utils.GenerateID(),
		SellerName:  sellerName,
		Title:       title,
		Description: description,
		EndsAt:      endsAt.UTC(),
		Status:      models.StatusActive,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateListing(listing); err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to create listing by %s: %w", sellerName, err)
	}

	s.scheduler.Schedule(listing.ListingID, listing.EndsAt)
	return listing, nil
}

// GetListing returns a listing together with its bids
func (s *AuctionService) GetListing(listingID string) (models.Listing, []models.Bid, error) {
	if listingID == "" {
		return models.Listing{}, nil, fmt.Errorf("service: %w - empty listing ID", auctionerrors.ErrInvalidListing)
	}

	listing, err := s.repo.GetListing(listingID)
	if err != nil {
		return models.Listing{}, nil, fmt.Errorf("service: failed to get listing %s: %w", listingID, err)
	}
	bids, err := s.repo.ListBids(listingID)
	if err != nil {
		return models.Listing{}, nil, fmt.Errorf("service: failed to list bids for %s: %w", listingID, err)
	}
	return listing, bids, nil
}

// ListListings returns all listings
func (s *AuctionService) ListListings() ([]models.Listing, error) {
	listings, err := s.repo.ListListings()
	if err != nil {
		return nil, fmt.Errorf("service: failed to list listings: %w", err)
	}
	return listings, nil
}

// PlaceBid validates and records a bid, escrowing the bid amount from
// the bidder's account. Every accepted bid reserves fresh funds; a
// bidder outbidding themselves holds both escrows until settlement
// refunds the superseded one.
func (s *AuctionService) PlaceBid(listingID, bidderName string, amount int64) (models.Listing, []models.Bid, error) {
	if listingID == "" || bidderName == "" {
		return models.Listing{}, nil, fmt.Errorf("service: %w - missing listingID or bidderName", auctionerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return models.Listing{}, nil, fmt.Errorf("service: %w - non-positive bid amount", auctionerrors.ErrInvalidBid)
	}

	lock := s.listingLock(listingID)
	lock.Lock()
	defer lock.Unlock()

	listing, err := s.repo.GetListing(listingID)
	if err != nil {
		return models.Listing{}, nil, fmt.Errorf("service: failed to load listing %s: %w", listingID, err)
	}
	if bidderName == listing.SellerName {
		return models.Listing{}, nil, fmt.Errorf("service: %w - listing %s", auctionerrors.ErrSelfBid, listingID)
	}
	if listing.Status != models.StatusActive || s.now().After(listing.EndsAt) {
		return models.Listing{}, nil, fmt.Errorf("service: %w - listing %s", auctionerrors.ErrListingClosed, listingID)
	}

	bids, err := s.repo.ListBids(listingID)
	if err != nil {
		return models.Listing{}, nil, fmt.Errorf("service: failed to check bids for %s: %w", listingID, err)
	}
	var currentHighest int64
	for _, b := range bids {
		if b.Amount > currentHighest {
			currentHighest = b.Amount
		}
	}
	if amount <= currentHighest {
		return models.Listing{}, nil, fmt.Errorf("service: %w - current highest bid is %d", auctionerrors.ErrBidTooLow, currentHighest)
	}

	if err := s.ledger.Reserve(bidderName, amount); err != nil {
		return models.Listing{}, nil, fmt.Errorf("service: failed to reserve %d from %s: %w", amount, bidderName, err)
	}

	bid := models.Bid{
		BidID:      utils.GenerateID(),
		ListingID:  listingID,
		BidderName: bidderName,
		Amount:     amount,
		PlacedAt:   s.now().UTC(),
	}
	if err := s.repo.AppendBid(bid); err != nil {
		// Undo the escrow so a failed insert never strands credits.
		if refundErr := s.ledger.Refund(bidderName, amount); refundErr != nil {
			utils.Error("failed to release escrow after bid insert failure", map[string]any{
				"listing_id": listingID,
				"bidder":     bidderName,
				"amount":     amount,
				"error":      refundErr.Error(),
			})
		}
		return models.Listing{}, nil, fmt.Errorf("service: failed to record bid on %s by %s: %w", listingID, bidderName, err)
	}

	return listing, append(bids, bid), nil
}

// Settle resolves a listing at its end time: the highest bid wins, the
// seller is paid the winning amount and every other escrow is returned.
// It is a safe no-op for listings no longer Active, so duplicate
// scheduler fires and sweeper passes cannot move credits twice.
func (s *AuctionService) Settle(listingID string) error {
	lock := s.listingLock(listingID)
	lock.Lock()
	defer lock.Unlock()

	listing, err := s.repo.GetListing(listingID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrListingNotFound) {
			return nil
		}
		return fmt.Errorf("service: failed to load listing %s for settlement: %w", listingID, err)
	}
	if listing.Status != models.StatusActive {
		return nil
	}

	bids, err := s.repo.ListBids(listingID)
	if err != nil {
		return fmt.Errorf("service: failed to read bids for settlement of %s: %w", listingID, err)
	}

	if len(bids) == 0 {
		if err := s.repo.UpdateListingStatus(listingID, models.StatusSettled, nil); err != nil {
			return fmt.Errorf("service: failed to settle empty listing %s: %w", listingID, err)
		}
		utils.Info("listing settled with no bids", map[string]any{"listing_id": listingID})
		return nil
	}

	winner := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > winner.Amount {
			winner = b
		}
	}

	// Escrow closure is tracked per bid so a retried settlement never
	// pays a loser twice.
	for _, b := range bids {
		if b.BidID == winner.BidID || b.Refunded {
			continue
		}
		if err := s.ledger.Refund(b.BidderName, b.Amount); err != nil {
			return fmt.Errorf("service: failed to refund losing bid %s on %s: %w", b.BidID, listingID, err)
		}
		if err := s.repo.MarkBidRefunded(b.BidID); err != nil {
			return fmt.Errorf("service: failed to mark bid %s refunded: %w", b.BidID, err)
		}
	}

	// The winning escrow is closed the same way: once the seller is
	// paid the winner's bid is marked, so a retry after a failed status
	// update cannot pay the seller again.
	if !winner.Refunded {
		if err := s.ledger.Transfer(listing.SellerName, winner.Amount); err != nil {
			return fmt.Errorf("service: failed to pay seller %s for %s: %w", listing.SellerName, listingID, err)
		}
		if err := s.repo.MarkBidRefunded(winner.BidID); err != nil {
			return fmt.Errorf("service: failed to close winning bid %s: %w", winner.BidID, err)
		}
	}

	if err := s.repo.UpdateListingStatus(listingID, models.StatusSettled, &winner.BidderName); err != nil {
		return fmt.Errorf("service: failed to mark listing %s settled: %w", listingID, err)
	}

	utils.Info("listing settled", map[string]any{
		"listing_id": listingID,
		"winner":     winner.BidderName,
		"amount":     winner.Amount,
	})
	return nil
}

// DeleteListing cancels an active listing: every escrowed bid is
// refunded, the listing is marked Cancelled and its pending settlement
// job is removed. Only the seller may delete their listing.
func (s *AuctionService) DeleteListing(listingID, requesterName string) error {
	if listingID == "" {
		return fmt.Errorf("service: %w - empty listing ID", auctionerrors.ErrInvalidListing)
	}

	lock := s.listingLock(listingID)
	lock.Lock()
	defer lock.Unlock()

	listing, err := s.repo.GetListing(listingID)
	if err != nil {
		return fmt.Errorf("service: failed to load listing %s for delete: %w", listingID, err)
	}
	if requesterName != listing.SellerName {
		return fmt.Errorf("service: %w - listing %s", auctionerrors.ErrNotSeller, listingID)
	}
	if listing.Status != models.StatusActive {
		return fmt.Errorf("service: %w - listing %s", auctionerrors.ErrListingClosed, listingID)
	}

	bids, err := s.repo.ListBids(listingID)
	if err != nil {
		return fmt.Errorf("service: failed to read bids for cancellation of %s: %w", listingID, err)
	}
	for _, b := range bids {
		if b.Refunded {
			continue
		}
		if err := s.ledger.Refund(b.BidderName, b.Amount); err != nil {
			return fmt.Errorf("service: failed to refund bid %s on cancelled %s: %w", b.BidID, listingID, err)
		}
		if err := s.repo.MarkBidRefunded(b.BidID); err != nil {
			return fmt.Errorf("service: failed to mark bid %s refunded: %w", b.BidID, err)
		}
	}

	if err := s.repo.UpdateListingStatus(listingID, models.StatusCancelled, nil); err != nil {
		return fmt.Errorf("service: failed to mark listing %s cancelled: %w", listingID, err)
	}

	s.scheduler.Cancel(listingID)
	utils.Info("listing cancelled", map[string]any{
		"listing_id":    listingID,
		"refunded_bids": len(bids),
	})
	return nil
}

// OverdueListings returns the ids of Active listings whose end time has
// passed. Used by the scheduler's sweep as a backstop for lost timers.
func (s *AuctionService) OverdueListings() []string {
	listings, err := s.repo.ListListings()
	if err != nil {
		utils.Error("failed to scan for overdue listings", map[string]any{"error": err.Error()})
		return nil
	}

	now := s.now()
	var overdue []string
	for _, l := range listings {
		if l.Status == models.StatusActive && now.After(l.EndsAt) {
			overdue = append(overdue, l.ListingID)
		}
	}
	return overdue
}
