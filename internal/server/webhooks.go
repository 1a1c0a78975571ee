package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleStripeWebhook verifies and dispatches a provider event. Errors
// other than a bad signature surface as 500 so the provider redelivers.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, newValidationError("body", "unable to read request body"))
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := s.dispatcher.Handle(c.Request.Context(), payload, signature); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
