package server

import (
	handler "auction-house/services/auction/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(auctionService handler.AuctionServiceInterface) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	auctionHandler := handler.NewAuctionHandler(auctionService)

	users := router.Group("/users")
	{
		users.POST("", auctionHandler.CreateUserHandler)
		users.GET("/:username/balance", auctionHandler.GetBalanceHandler)
	}

	listings := router.Group("/listings")
	{
		listings.POST("", auctionHandler.CreateListingHandler)
		listings.GET("", auctionHandler.ListListingsHandler)
		listings.GET("/:listing_id", auctionHandler.GetListingHandler)
		listings.POST("/:listing_id/bids", auctionHandler.PlaceBidHandler)
		listings.DELETE("/:listing_id", auctionHandler.DeleteListingHandler)
	}

	return router
}
