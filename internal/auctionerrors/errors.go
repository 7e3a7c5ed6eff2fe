package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrBidNotFound     = errors.New("bid not found")
)

// business logic errors
var (
	ErrInvalidListing    = errors.New("invalid listing")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidBid        = errors.New("invalid bid")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrSelfBid           = errors.New("sellers cannot bid on their own listing")
	ErrNotSeller         = errors.New("only the seller can remove a listing")
	ErrListingClosed     = errors.New("listing is no longer open")
	ErrInsufficientFunds = errors.New("insufficient credit balance")
)
