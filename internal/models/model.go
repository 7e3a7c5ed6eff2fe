package models

import "time"

// ListingStatus is the lifecycle state of a listing. Settled and
// Cancelled are terminal.
type ListingStatus string

const (
	StatusActive    ListingStatus = "active"
	StatusSettled   ListingStatus = "settled"
	StatusCancelled ListingStatus = "cancelled"
)

// Account holds a user's spendable credit balance. Balances are mutated
// only through ledger operations and never go negative.
type Account struct {
	HolderName    string `json:"holder_name"`
	CreditBalance int64  `json:"credit_balance"`
}

// Listing represents an item up for auction. WinnerName is nil until the
// listing settles with at least one bid.
type Listing struct {
	ListingID   string        `json:"listing_id"`
	SellerName  string        `json:"seller_name"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	EndsAt      time.Time     `json:"ends_at"`
	Status      ListingStatus `json:"status"`
	WinnerName  *string       `json:"winner_name,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Bid represents a user's bid on a listing. Amount is escrowed from the
// bidder's account when the bid is accepted; Refunded records that the
// escrow has been closed, either returned to the bidder (losing bid or
// cancelled listing) or paid out to the seller (winning bid).
type Bid struct {
	BidID      string    `json:"bid_id"`
	ListingID  string    `json:"listing_id"`
	BidderName string    `json:"bidder_name"`
	Amount     int64     `json:"amount"`
	PlacedAt   time.Time `json:"placed_at"`
	Refunded   bool      `json:"refunded"`
}
