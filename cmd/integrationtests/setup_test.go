package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	auction "auction-house/internal/auctionService"
	"auction-house/internal/ledger"
	"auction-house/internal/repository"
	"auction-house/internal/scheduler"
	"auction-house/internal/server"
	"auction-house/services/auction/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// SetupTestRouter wires the full stack (in-memory repo, ledger, live
// scheduler, service, router) for black-box API testing.
func SetupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	led := ledger.NewLedger(repo)
	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	svc := auction.NewAuctionService(repo, repo, led, sched)
	sched.OnFire(svc.Settle)

	return server.SetupRouter(svc)
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}

	return resp, w
}

// CreateUser registers a user through the API and returns the holder name
func CreateUser(t *testing.T, router *gin.Engine, username string) {
	t.Helper()

	_, w := ExecuteRequestAndParse(t, router, "POST", "/users", helpers.CreateUserRequest{Username: username})
	require.Equal(t, 201, w.Code)
}

// CreateListing creates a listing through the API and returns its id
func CreateListing(t *testing.T, router *gin.Engine, sellerName string, endsAt time.Time) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, "POST", "/listings", helpers.CreateListingRequest{
		SellerName:  sellerName,
		Title:       "vintage clock",
		Description: "keeps perfect time",
		EndsAt:      endsAt,
	})
	require.Equal(t, 201, w.Code)

	data := resp["data"].(map[string]any)
	return data["listing_id"].(string)
}

// GetBalance reads a user's balance through the API
func GetBalance(t *testing.T, router *gin.Engine, username string) int64 {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, "GET", "/users/"+username+"/balance", nil)
	require.Equal(t, 200, w.Code)

	data := resp["data"].(map[string]any)
	return int64(data["credit_balance"].(float64))
}

// GetListingStatus reads a listing's status through the API
func GetListingStatus(t *testing.T, router *gin.Engine, listingID string) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, "GET", "/listings/"+listingID, nil)
	require.Equal(t, 200, w.Code)

	data := resp["data"].(map[string]any)
	return data["status"].(string)
}
