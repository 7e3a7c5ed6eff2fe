package auction

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-house/internal/auctionerrors"
	"auction-house/internal/ledger"
	model "auction-house/internal/models"
	"auction-house/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newTestService wires a service over the in-memory repo and a real
// ledger, with a mocked scheduler that tolerates any Schedule calls.
func newTestService(t *testing.T) (*AuctionService, *repository.MemoryRepo, *MockJobScheduler) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := repository.NewMemoryRepo()
	led := ledger.NewLedger(repo)
	mockSched := NewMockJobScheduler(ctrl)
	mockSched.EXPECT().Schedule(gomock.Any(), gomock.Any()).AnyTimes()

	svc := NewAuctionService(repo, repo, led, mockSched)
	return svc, repo, mockSched
}

func mustCreateAccount(t *testing.T, svc *AuctionService, holderName string) {
	t.Helper()
	_, err := svc.CreateAccount(holderName)
	require.NoError(t, err)
}

func mustCreateListing(t *testing.T, svc *AuctionService, sellerName string, endsAt time.Time) model.Listing {
	t.Helper()
	listing, err := svc.CreateListing(sellerName, "vintage clock", "keeps perfect time", endsAt)
	require.NoError(t, err)
	return listing
}

func balanceOf(t *testing.T, repo *repository.MemoryRepo, holderName string) int64 {
	t.Helper()
	account, err := repo.GetAccount(holderName)
	require.NoError(t, err)
	return account.CreditBalance
}

// Tests CreateAccount
func TestAuctionService_CreateAccount(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)

	account, err := svc.CreateAccount("alice")
	require.NoError(t, err)
	require.Equal(t, "alice", account.HolderName)
	require.Equal(t, StartingBalance, account.CreditBalance)
	require.Equal(t, StartingBalance, balanceOf(t, repo, "alice"))

	_, err = svc.CreateAccount("alice")
	require.Error(t, err)
	require.True(t, errors.Is(err, auctionerrors.ErrAccountExists))

	_, err = svc.CreateAccount("")
	require.Error(t, err)
}

// Tests CreateListing
func TestAuctionService_CreateListing(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(time.Hour)

	tests := []struct {
		name          string
		sellerName    string
		title         string
		endsAt        time.Time
		seedSeller    bool
		expectedError error
	}{
		{name: "valid_listing", sellerName: "seller", title: "lamp", endsAt: future, seedSeller: true},
		{name: "missing_seller_account", sellerName: "ghost", title: "lamp", endsAt: future, expectedError: auctionerrors.ErrAccountNotFound},
		{name: "empty_seller", sellerName: "", title: "lamp", endsAt: future, expectedError: auctionerrors.ErrInvalidListing},
		{name: "empty_title", sellerName: "seller", title: "", endsAt: future, seedSeller: true, expectedError: auctionerrors.ErrInvalidListing},
		{name: "ends_in_the_past", sellerName: "seller", title: "lamp", endsAt: time.Now().Add(-time.Minute), seedSeller: true, expectedError: auctionerrors.ErrInvalidListing},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newTestService(t)
			if tc.seedSeller {
				mustCreateAccount(t, svc, "seller")
			}

			listing, err := svc.CreateListing(tc.sellerName, tc.title, "desc", tc.endsAt)
			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, listing.ListingID)
			_, parseErr := uuid.Parse(listing.ListingID)
			require.NoError(t, parseErr, "ListingID should be a valid UUID")
			require.Equal(t, model.StatusActive, listing.Status)
			require.Nil(t, listing.WinnerName)
		})
	}

	t.Run("registers_settlement_job", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := repository.NewMemoryRepo()
		led := ledger.NewLedger(repo)
		mockSched := NewMockJobScheduler(ctrl)
		svc := NewAuctionService(repo, repo, led, mockSched)
		mustCreateAccount(t, svc, "seller")

		mockSched.EXPECT().Schedule(gomock.Any(), future.UTC()).Times(1)

		_, err := svc.CreateListing("seller", "lamp", "desc", future)
		require.NoError(t, err)
	})
}

// Tests PlaceBid
func TestAuctionService_PlaceBid(t *testing.T) {
	t.Parallel()

	endsAt := time.Now().Add(time.Hour)

	tests := []struct {
		name          string
		bidderName    string
		amount        int64
		setup         func(t *testing.T, svc *AuctionService, listingID string)
		expectedError error
		wantBalance   map[string]int64
	}{
		{
			name:       "valid_first_bid",
			bidderName: "alice",
			amount:     100,
			setup: func(t *testing.T, svc *AuctionService, listingID string) {
				mustCreateAccount(t, svc, "alice")
			},
			wantBalance: map[string]int64{"alice": 900},
		},
		{
			name:       "higher_bid_accepted",
			bidderName: "bob",
			amount:     150,
			setup: func(t *testing.T, svc *AuctionService, listingID string) {
				mustCreateAccount(t, svc, "alice")
				mustCreateAccount(t, svc, "bob")
				_, _, err := svc.PlaceBid(listingID, "alice", 100)
				require.NoError(t, err)
			},
			wantBalance: map[string]int64{"alice": 900, "bob": 850},
		},
		{
			name:       "bid_equal_to_highest_rejected",
			bidderName: "bob",
			amount:     100,
			setup: func(t *testing.T, svc *AuctionService, listingID string) {
				mustCreateAccount(t, svc, "alice")
				mustCreateAccount(t, svc, "bob")
				_, _, err := svc.PlaceBid(listingID, "alice", 100)
				require.NoError(t, err)
			},
			expectedError: auctionerrors.ErrBidTooLow,
			wantBalance:   map[string]int64{"bob": 1000},
		},
		{
			name:          "self_bid_forbidden",
			bidderName:    "seller",
			amount:        100,
			setup:         func(t *testing.T, svc *AuctionService, listingID string) {},
			expectedError: auctionerrors.ErrSelfBid,
		},
		{
			name:       "insufficient_funds",
			bidderName: "carl",
			amount:     50,
			setup: func(t *testing.T, svc *AuctionService, listingID string) {
				mustCreateAccount(t, svc, "carl")
				// drain carl down to 40
				require.NoError(t, svc.ledger.Reserve("carl", 960))
			},
			expectedError: auctionerrors.ErrInsufficientFunds,
			wantBalance:   map[string]int64{"carl": 40},
		},
		{
			name:          "unknown_bidder_account",
			bidderName:    "ghost",
			amount:        100,
			setup:         func(t *testing.T, svc *AuctionService, listingID string) {},
			expectedError: auctionerrors.ErrAccountNotFound,
		},
		{
			name:          "zero_amount",
			bidderName:    "alice",
			amount:        0,
			setup:         func(t *testing.T, svc *AuctionService, listingID string) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "negative_amount",
			bidderName:    "alice",
			amount:        -10,
			setup:         func(t *testing.T, svc *AuctionService, listingID string) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "empty_bidder",
			bidderName:    "",
			amount:        100,
			setup:         func(t *testing.T, svc *AuctionService, listingID string) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, repo, _ := newTestService(t)
			mustCreateAccount(t, svc, "seller")
			listing := mustCreateListing(t, svc, "seller", endsAt)

			tc.setup(t, svc, listing.ListingID)

			_, bids, err := svc.PlaceBid(listing.ListingID, tc.bidderName, tc.amount)
			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
			} else {
				require.NoError(t, err)
				last := bids[len(bids)-1]
				require.Equal(t, tc.bidderName, last.BidderName)
				require.Equal(t, tc.amount, last.Amount)
				_, parseErr := uuid.Parse(last.BidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")
			}

			for holder, want := range tc.wantBalance {
				require.Equal(t, want, balanceOf(t, repo, holder), "balance of %s", holder)
			}
		})
	}

	t.Run("unknown_listing", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "alice")

		_, _, err := svc.PlaceBid("missing", "alice", 100)
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrListingNotFound))
	})

	t.Run("listing_past_end_time", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "seller")
		mustCreateAccount(t, svc, "alice")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, _, err := svc.PlaceBid(listing.ListingID, "alice", 100)
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrListingClosed))
	})

	t.Run("listing_already_settled", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "seller")
		mustCreateAccount(t, svc, "alice")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))
		require.NoError(t, svc.Settle(listing.ListingID))

		_, _, err := svc.PlaceBid(listing.ListingID, "alice", 100)
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrListingClosed))
	})

	// concurrency test: bids racing on one listing keep the strictly
	// increasing amount invariant
	t.Run("concurrent_bids_strictly_increasing", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "seller")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			i := i
			go func() {
				defer wg.Done()
				bidder := fmt.Sprintf("bidder-%d", i)
				mustCreateAccount(t, svc, bidder)
				_, _, _ = svc.PlaceBid(listing.ListingID, bidder, int64(100+i)) // many lose the race, by design of admission
			}()
		}
		wg.Wait()

		_, bids, err := svc.GetListing(listing.ListingID)
		require.NoError(t, err)
		require.NotEmpty(t, bids)
		for i := 1; i < len(bids); i++ {
			require.Greater(t, bids[i].Amount, bids[i-1].Amount)
		}
	})
}

// Settlement of the full scenario: two bidders, highest wins, loser is
// refunded and the seller is paid exactly the winning amount
func TestAuctionService_Settle_WinnerAndRefunds(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	mustCreateAccount(t, svc, "seller")
	mustCreateAccount(t, svc, "alice")
	mustCreateAccount(t, svc, "bob")
	listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

	_, _, err := svc.PlaceBid(listing.ListingID, "alice", 100)
	require.NoError(t, err)
	require.Equal(t, int64(900), balanceOf(t, repo, "alice"))

	_, _, err = svc.PlaceBid(listing.ListingID, "bob", 150)
	require.NoError(t, err)
	require.Equal(t, int64(850), balanceOf(t, repo, "bob"))

	require.NoError(t, svc.Settle(listing.ListingID))

	require.Equal(t, int64(1150), balanceOf(t, repo, "seller"))
	require.Equal(t, int64(1000), balanceOf(t, repo, "alice"))
	require.Equal(t, int64(850), balanceOf(t, repo, "bob"))

	settled, _, err := svc.GetListing(listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSettled, settled.Status)
	require.NotNil(t, settled.WinnerName)
	require.Equal(t, "bob", *settled.WinnerName)

	// duplicate scheduler fire: second settlement must change nothing
	require.NoError(t, svc.Settle(listing.ListingID))
	require.Equal(t, int64(1150), balanceOf(t, repo, "seller"))
	require.Equal(t, int64(1000), balanceOf(t, repo, "alice"))
	require.Equal(t, int64(850), balanceOf(t, repo, "bob"))
}

// A listing with zero bids settles with no winner and no ledger changes
func TestAuctionService_Settle_NoBids(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	mustCreateAccount(t, svc, "seller")
	listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

	require.NoError(t, svc.Settle(listing.ListingID))

	require.Equal(t, StartingBalance, balanceOf(t, repo, "seller"))

	settled, _, err := svc.GetListing(listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSettled, settled.Status)
	require.Nil(t, settled.WinnerName)
}

// A bidder outbidding themselves escrows fresh funds for each bid and
// gets the superseded escrow back at settlement
func TestAuctionService_Settle_SelfOutbid(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	mustCreateAccount(t, svc, "seller")
	mustCreateAccount(t, svc, "alice")
	listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

	_, _, err := svc.PlaceBid(listing.ListingID, "alice", 100)
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(listing.ListingID, "alice", 150)
	require.NoError(t, err)
	require.Equal(t, int64(750), balanceOf(t, repo, "alice"))

	require.NoError(t, svc.Settle(listing.ListingID))

	// winning escrow of 150 goes to the seller, the superseded 100 comes back
	require.Equal(t, int64(850), balanceOf(t, repo, "alice"))
	require.Equal(t, int64(1150), balanceOf(t, repo, "seller"))
}

// flakyStatusStore fails a configured number of status updates before
// delegating, simulating a persistence error mid-settlement
type flakyStatusStore struct {
	*repository.MemoryRepo
	statusFailures int
}

func (r *flakyStatusStore) UpdateListingStatus(listingID string, status model.ListingStatus, winnerName *string) error {
	if r.statusFailures > 0 {
		r.statusFailures--
		return errors.New("transient store failure")
	}
	return r.MemoryRepo.UpdateListingStatus(listingID, status, winnerName)
}

// A settlement retried after the status update fails must not pay the
// seller or refund a loser a second time
func TestAuctionService_Settle_RetryAfterStatusFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := repository.NewMemoryRepo()
	flaky := &flakyStatusStore{MemoryRepo: repo, statusFailures: 1}
	led := ledger.NewLedger(repo)
	mockSched := NewMockJobScheduler(ctrl)
	mockSched.EXPECT().Schedule(gomock.Any(), gomock.Any()).AnyTimes()
	svc := NewAuctionService(flaky, repo, led, mockSched)

	mustCreateAccount(t, svc, "seller")
	mustCreateAccount(t, svc, "alice")
	mustCreateAccount(t, svc, "bob")
	listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

	_, _, err := svc.PlaceBid(listing.ListingID, "alice", 100)
	require.NoError(t, err)
	_, _, err = svc.PlaceBid(listing.ListingID, "bob", 150)
	require.NoError(t, err)

	// first run moves the credits but fails to persist the new status
	require.Error(t, svc.Settle(listing.ListingID))

	// the retry completes without moving any credits again
	require.NoError(t, svc.Settle(listing.ListingID))

	require.Equal(t, int64(1150), balanceOf(t, repo, "seller"))
	require.Equal(t, int64(1000), balanceOf(t, repo, "alice"))
	require.Equal(t, int64(850), balanceOf(t, repo, "bob"))

	settled, _, err := svc.GetListing(listing.ListingID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSettled, settled.Status)
	require.NotNil(t, settled.WinnerName)
	require.Equal(t, "bob", *settled.WinnerName)
}

// Balance conservation: credits reserved for a listing equal the
// seller's gain plus all refunds
func TestAuctionService_BalanceConservation(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)
	mustCreateAccount(t, svc, "seller")
	listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

	bidders := []string{"alice", "bob", "carol", "dave"}
	amounts := []int64{100, 130, 200, 260}
	var totalReserved int64
	for i, bidder := range bidders {
		mustCreateAccount(t, svc, bidder)
		_, _, err := svc.PlaceBid(listing.ListingID, bidder, amounts[i])
		require.NoError(t, err)
		totalReserved += amounts[i]
	}

	require.NoError(t, svc.Settle(listing.ListingID))

	sellerGain := balanceOf(t, repo, "seller") - StartingBalance
	var refunded int64
	for i, bidder := range bidders {
		refund := balanceOf(t, repo, bidder) - (StartingBalance - amounts[i])
		require.GreaterOrEqual(t, refund, int64(0))
		refunded += refund
	}
	require.Equal(t, totalReserved, sellerGain+refunded)
}

// Tests DeleteListing
func TestAuctionService_DeleteListing(t *testing.T) {
	t.Parallel()

	t.Run("cancellation_refunds_every_bidder", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := repository.NewMemoryRepo()
		led := ledger.NewLedger(repo)
		mockSched := NewMockJobScheduler(ctrl)
		mockSched.EXPECT().Schedule(gomock.Any(), gomock.Any()).Times(1)
		svc := NewAuctionService(repo, repo, led, mockSched)

		mustCreateAccount(t, svc, "seller")
		mustCreateAccount(t, svc, "alice")
		mustCreateAccount(t, svc, "bob")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

		_, _, err := svc.PlaceBid(listing.ListingID, "alice", 50)
		require.NoError(t, err)
		_, _, err = svc.PlaceBid(listing.ListingID, "bob", 80)
		require.NoError(t, err)

		mockSched.EXPECT().Cancel(listing.ListingID).Times(1)
		require.NoError(t, svc.DeleteListing(listing.ListingID, "seller"))

		require.Equal(t, StartingBalance, balanceOf(t, repo, "alice"))
		require.Equal(t, StartingBalance, balanceOf(t, repo, "bob"))
		require.Equal(t, StartingBalance, balanceOf(t, repo, "seller"))

		cancelled, _, err := svc.GetListing(listing.ListingID)
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, cancelled.Status)

		// a late scheduler fire after endsAt must not move credits
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		require.NoError(t, svc.Settle(listing.ListingID))
		require.Equal(t, StartingBalance, balanceOf(t, repo, "alice"))
		require.Equal(t, StartingBalance, balanceOf(t, repo, "bob"))
		require.Equal(t, StartingBalance, balanceOf(t, repo, "seller"))
	})

	t.Run("non_seller_forbidden", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "seller")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))

		err := svc.DeleteListing(listing.ListingID, "mallory")
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrNotSeller))
	})

	t.Run("unknown_listing", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		err := svc.DeleteListing("missing", "seller")
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrListingNotFound))
	})

	t.Run("already_settled", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newTestService(t)
		mustCreateAccount(t, svc, "seller")
		listing := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))
		require.NoError(t, svc.Settle(listing.ListingID))

		err := svc.DeleteListing(listing.ListingID, "seller")
		require.Error(t, err)
		require.True(t, errors.Is(err, auctionerrors.ErrListingClosed))
	})
}

// Tests OverdueListings
func TestAuctionService_OverdueListings(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)
	mustCreateAccount(t, svc, "seller")

	fresh := mustCreateListing(t, svc, "seller", time.Now().Add(time.Hour))
	stale := mustCreateListing(t, svc, "seller", time.Now().Add(time.Minute))
	settledEarly := mustCreateListing(t, svc, "seller", time.Now().Add(time.Minute))
	require.NoError(t, svc.Settle(settledEarly.ListingID))

	svc.now = func() time.Time { return time.Now().Add(30 * time.Minute) }

	overdue := svc.OverdueListings()
	require.Contains(t, overdue, stale.ListingID)
	require.NotContains(t, overdue, fresh.ListingID)
	require.NotContains(t, overdue, settledEarly.ListingID)
}

// Tests Settle error wrapping against a failing store
func TestAuctionService_Settle_RepoErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := repository.NewMockAuctionDB(ctrl)
	accounts := repository.NewMemoryRepo()
	led := ledger.NewLedger(accounts)
	mockSched := NewMockJobScheduler(ctrl)
	svc := NewAuctionService(mockDB, accounts, led, mockSched)

	t.Run("missing_listing_is_noop", func(t *testing.T) {
		mockDB.EXPECT().GetListing("gone").Return(model.Listing{}, fmt.Errorf("get listing gone: %w", auctionerrors.ErrListingNotFound))
		require.NoError(t, svc.Settle("gone"))
	})

	t.Run("bid_read_failure_propagates", func(t *testing.T) {
		mockDB.EXPECT().GetListing("l1").Return(model.Listing{ListingID: "l1", SellerName: "seller", Status: model.StatusActive}, nil)
		mockDB.EXPECT().ListBids("l1").Return(nil, errors.New("db failure"))
		require.Error(t, svc.Settle("l1"))
	})
}
