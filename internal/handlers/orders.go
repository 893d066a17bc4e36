package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// CreateOrder handles POST /api/orders
func (h *Handlers) CreateOrder(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	var req models.CreateOrderRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"order":   order,
	})
}

// ListMyOrders handles GET /api/orders/me
func (h *Handlers) ListMyOrders(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	list, err := h.orderService.ListMine(c.Request.Context(), actor, c.Query("page"), c.Query("limit"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": list.Orders,
		"meta": gin.H{
			"total": list.Total,
			"page":  list.Page,
			"limit": list.Limit,
		},
	})
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	view, err := h.orderService.GetOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": view})
}

// CancelOrder handles POST /api/orders/:id/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateOrderAddress handles PATCH /api/orders/:id/address
func (h *Handlers) UpdateOrderAddress(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	var req models.UpdateAddressRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	order, err := h.orderService.UpdateShippingAddress(c.Request.Context(), actor, c.Param("id"), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// UpdateOrderStatus handles POST /api/orders/:id/status (admin)
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	actor, ok := h.identity(c)
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	order, err := h.orderService.AdvanceStatus(c.Request.Context(), actor, c.Param("id"), &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}
