package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// CreatePayment handles POST /api/payments/:orderId
func (h *Handlers) CreatePayment(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	result, err := h.paymentService.CreateIntent(c.Request.Context(), actor, c.Param("orderId"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	providerOrder := gin.H{
		"id":       result.Intent.ID,
		"amount":   result.Intent.Amount,
		"currency": result.Intent.Currency,
	}
	if result.Intent.ClientSecret != "" {
		providerOrder["clientSecret"] = result.Intent.ClientSecret
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":       "Payment initiated successfully",
		"payment":       result.Payment,
		"providerOrder": providerOrder,
	})
}

// VerifyPayment handles POST /api/payments/verify
func (h *Handlers) VerifyPayment(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	var req models.VerifyPaymentRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.paymentService.Verify(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	message := "Payment verified successfully"
	if result.AlreadyProcessed {
		message = "Payment already verified"
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          message,
		"alreadyProcessed": result.AlreadyProcessed,
		"payment":          result.Payment,
	})
}

// GetPayment handles GET /api/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}
