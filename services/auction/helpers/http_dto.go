package helpers

import (
	"time"

	model "auction-house/internal/models"
)

// Request/Response DTOs
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
}

type CreateListingRequest struct {
	SellerName  string    `json:"seller_name" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
}

type PlaceBidRequest struct {
	BidderName string `json:"bidder_name" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
}

type AccountResponse struct {
	HolderName    string `json:"holder_name"`
	CreditBalance int64  `json:"credit_balance"`
}

type BidResponse struct {
	BidID      string `json:"bid_id"`
	ListingID  string `json:"listing_id"`
	BidderName string `json:"bidder_name"`
	Amount     int64  `json:"amount"`
	PlacedAt   string `json:"placed_at"`
}

type ListingResponse struct {
	ListingID   string        `json:"listing_id"`
	SellerName  string        `json:"seller_name"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	EndsAt      string        `json:"ends_at"`
	Status      string        `json:"status"`
	WinnerName  *string       `json:"winner_name,omitempty"`
	Bids        []BidResponse `json:"bids"`
}

// NewListingResponse builds the listing view returned by the API
func NewListingResponse(listing model.Listing, bids []model.Bid) ListingResponse {
	resp := ListingResponse{
		ListingID:   listing.ListingID,
		SellerName:  listing.SellerName,
		Title:       listing.Title,
		Description: listing.Description,
		EndsAt:      listing.EndsAt.UTC().Format(time.RFC3339),
		Status:      string(listing.Status),
		WinnerName:  listing.WinnerName,
		Bids:        make([]BidResponse, 0, len(bids)),
	}
	for _, b := range bids {
		resp.Bids = append(resp.Bids, BidResponse{
			BidID:      b.BidID,
			ListingID:  b.ListingID,
			BidderName: b.BidderName,
			Amount:     b.Amount,
			PlacedAt:   b.PlacedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
