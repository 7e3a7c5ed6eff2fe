package handler

import (
	"fmt"
	"net/http"
	"time"

	model "auction-house/internal/models"
	"auction-house/services/auction/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

type AuctionServiceInterface interface {
	CreateAccount(holderName string) (model.Account, error)
	GetBalance(holderName string) (int64, error)
	CreateListing(sellerName, title, description string, endsAt time.Time) (model.Listing, error)
	GetListing(listingID string) (model.Listing, []model.Bid, error)
	ListListings() ([]model.Listing, error)
	PlaceBid(listingID, bidderName string, amount int64) (model.Listing, []model.Bid, error)
	DeleteListing(listingID, requesterName string) error
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// CreateUserHandler handles POST /users
func (h *AuctionHandler) CreateUserHandler(c *gin.Context) {
	var req helpers.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateUserHandler", err)
		return
	}

	account, err := h.service.CreateAccount(req.Username)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateUserHandler: failed to create account", map[string]any{
			"username": req.Username,
			"error":    err.Error(),
		})
		return
	}

	resp := helpers.AccountResponse{
		HolderName:    account.HolderName,
		CreditBalance: account.CreditBalance,
	}
	utils.JSONResponse(c, http.StatusCreated, resp, "account created successfully")
	helpers.LogSuccess("CreateUserHandler", "account created successfully", map[string]any{
		"holder_name": account.HolderName,
		"balance":     account.CreditBalance,
	})
}

// GetBalanceHandler handles GET /users/:username/balance
func (h *AuctionHandler) GetBalanceHandler(c *gin.Context) {
	username := c.Param("username")
	balance, err := h.service.GetBalance(username)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBalanceHandler: error retrieving balance", map[string]any{"username": username, "error": err.Error()})
		return
	}

	resp := helpers.AccountResponse{HolderName: username, CreditBalance: balance}
	utils.JSONResponse(c, http.StatusOK, resp, "balance retrieved successfully")
}

// CreateListingHandler handles POST /listings
func (h *AuctionHandler) CreateListingHandler(c *gin.Context) {
	var req helpers.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateListingHandler", err)
		return
	}

	listing, err := h.service.CreateListing(req.SellerName, req.Title, req.Description, req.EndsAt)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateListingHandler: failed to create listing", map[string]any{
			"seller_name": req.SellerName,
			"error":       err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewListingResponse(listing, nil), "listing created successfully")
	helpers.LogSuccess("CreateListingHandler", "listing created successfully", map[string]any{
		"listing_id":  listing.ListingID,
		"seller_name": listing.SellerName,
		"ends_at":     listing.EndsAt.UTC().Format(time.RFC3339),
	})
}

// ListListingsHandler handles GET /listings
func (h *AuctionHandler) ListListingsHandler(c *gin.Context) {
	listings, err := h.service.ListListings()
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("ListListingsHandler: error listing listings", map[string]any{"error": err.Error()})
		return
	}

	resp := make([]helpers.ListingResponse, 0, len(listings))
	for _, l := range listings {
		resp = append(resp, helpers.NewListingResponse(l, nil))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "listings retrieved successfully")
}

// GetListingHandler handles GET /listings/:listing_id
func (h *AuctionHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	listing, bids, err := h.service.GetListing(listingID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetListingHandler: error retrieving listing", map[string]any{"listing_id": listingID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewListingResponse(listing, bids), "listing retrieved successfully")
}

// PlaceBidHandler handles POST /listings/:listing_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	listingID := c.Param("listing_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	listing, bids, err := h.service.PlaceBid(listingID, req.BidderName, req.Amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"handler":     "PlaceBidHandler",
			"listing_id":  listingID,
			"bidder_name": req.BidderName,
			"amount":      req.Amount,
			"error":       err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewListingResponse(listing, bids), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"listing_id":  listingID,
		"bidder_name": req.BidderName,
		"amount":      req.Amount,
	})
}

// DeleteListingHandler handles DELETE /listings/:listing_id
func (h *AuctionHandler) DeleteListingHandler(c *gin.Context) {
	listingID := c.Param("listing_id")
	requester := c.Query("requester")

	if err := h.service.DeleteListing(listingID, requester); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("DeleteListingHandler: failed to delete listing", map[string]any{
			"listing_id": listingID,
			"requester":  requester,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"listing_id": listingID}, "listing cancelled successfully")
	helpers.LogSuccess("DeleteListingHandler", "listing cancelled successfully", map[string]any{
		"listing_id": listingID,
		"requester":  requester,
	})
}
