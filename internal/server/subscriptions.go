package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	providerdomain "github.com/smallbiznis/billfold/internal/paymentprovider/domain"
)

type createSubscriptionRequest struct {
	CustomerID string `json:"customer_id"`
	PriceID    string `json:"price_id"`
	TrialDays  int64  `json:"trial_days"`
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	PriceID    string `json:"price_id"`
}

// CreateSubscription pre-applies VAT to the upcoming invoice and opens
// the provider subscription.
func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid JSON payload"))
		return
	}

	if strings.TrimSpace(req.CustomerID) == "" {
		AbortWithError(c, newValidationError("customer_id", "is required"))
		return
	}
	if strings.TrimSpace(req.PriceID) == "" {
		AbortWithError(c, newValidationError("price_id", "is required"))
		return
	}
	if req.TrialDays < 0 {
		AbortWithError(c, newValidationError("trial_days", "must not be negative"))
		return
	}

	sub, err := s.invoiceSvc.CreateSubscription(c.Request.Context(), providerdomain.SubscriptionOptions{
		CustomerID: req.CustomerID,
		PriceID:    req.PriceID,
		TrialDays:  req.TrialDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, subscriptionResponse{
		ID:         sub.ID,
		CustomerID: sub.CustomerID,
		PriceID:    sub.PriceID,
	})
}
