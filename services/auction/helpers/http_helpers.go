package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-house/internal/auctionerrors"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrListingNotFound):
		return http.StatusNotFound, "listing not found"
	case errors.Is(err, auctionerrors.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, auctionerrors.ErrAccountExists):
		return http.StatusConflict, "account already exists"
	case errors.Is(err, auctionerrors.ErrSelfBid):
		return http.StatusForbidden, "sellers cannot bid on their own listing"
	case errors.Is(err, auctionerrors.ErrNotSeller):
		return http.StatusForbidden, "only the seller can remove a listing"
	case errors.Is(err, auctionerrors.ErrListingClosed):
		return http.StatusConflict, "listing is no longer open"
	case errors.Is(err, auctionerrors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient credit balance"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return http.StatusBadRequest, "bid amount too low"
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, auctionerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "amount must be positive"
	case errors.Is(err, auctionerrors.ErrInvalidListing):
		return http.StatusBadRequest, "invalid listing details"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
