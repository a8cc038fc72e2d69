// README: Order handlers for create/get/list, status transitions, courier assignment, and PIN verification.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dishpatch/internal/modules/order"
	"dishpatch/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type orderItemReq struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name" binding:"required"`
	UnitPrice  float64 `json:"unit_price" binding:"required"`
	Quantity   int     `json:"quantity" binding:"required"`
}

type createOrderReq struct {
	RestaurantID    string         `json:"restaurant_id" binding:"required"`
	UserID          string         `json:"user_id" binding:"required"`
	Items           []orderItemReq `json:"items" binding:"required"`
	DeliveryAddress string         `json:"delivery_address"`
	DeliveryLat     float64        `json:"delivery_lat"`
	DeliveryLng     float64        `json:"delivery_lng"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{
			MenuItemID: types.ID(it.MenuItemID),
			Name:       it.Name,
			UnitPrice:  types.FromFloat(it.UnitPrice),
			Quantity:   it.Quantity,
		}
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		UserID:          types.ID(req.UserID),
		RestaurantID:    types.ID(req.RestaurantID),
		Items:           items,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	// the create response is the one place the delivery PIN is revealed
	c.JSON(http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		out []*order.Order
		err error
	)
	switch {
	case c.Query("user_id") != "":
		out, err = h.order.ListByUser(ctx, types.ID(c.Query("user_id")))
	case c.Query("restaurant_id") != "":
		out, err = h.order.ListByRestaurant(ctx, types.ID(c.Query("restaurant_id")))
	case c.Query("courier_id") != "":
		out, err = h.order.ListByCourier(ctx, types.ID(c.Query("courier_id")))
	case c.Query("status") != "":
		var statuses []order.Status
		for _, raw := range strings.Split(c.Query("status"), ",") {
			s, ok := order.ParseStatus(raw)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + raw})
				return
			}
			statuses = append(statuses, s)
		}
		out, err = h.order.ListByStatus(ctx, statuses)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing filter: user_id, restaurant_id, courier_id or status"})
		return
	}
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if out == nil {
		out = []*order.Order{}
	}
	c.JSON(http.StatusOK, out)
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	target, ok := order.ParseStatus(req.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + req.Status})
		return
	}
	o, err := h.order.Transition(c.Request.Context(), types.ID(c.Param("id")), target)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type assignCourierReq struct {
	CourierID string `json:"courier_id" binding:"required"`
}

func (h *OrderHandler) AssignCourier(c *gin.Context) {
	var req assignCourierReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	o, err := h.order.AssignCourier(c.Request.Context(), types.ID(c.Param("id")), types.ID(req.CourierID))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type verifyPINReq struct {
	PIN string `json:"pin" binding:"required"`
}

func (h *OrderHandler) VerifyPIN(c *gin.Context) {
	var req verifyPINReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.order.VerifyDeliveryPIN(c.Request.Context(), types.ID(c.Param("id")), req.PIN)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	resp := gin.H{"success": res.Success}
	if res.Order != nil {
		resp["order"] = res.Order
	}
	if res.Message != "" {
		resp["message"] = res.Message
	}
	c.JSON(http.StatusOK, resp)
}

// writeOrderError maps service errors onto the API surface. Rejected
// transitions name the current and requested status.
func writeOrderError(c *gin.Context, err error) {
	var te *order.TransitionError
	switch {
	case errors.As(err, &te):
		c.JSON(http.StatusConflict, gin.H{
			"error":            te.Error(),
			"current_status":   te.From,
			"requested_status": te.To,
		})
	case errors.Is(err, order.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrAlreadyAssigned), errors.Is(err, order.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
