package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service booking.BookingUseCase
	logger  *zap.Logger
}

type checkoutRequest struct {
	CartItemIDs []int64 `json:"cartItemIds" binding:"required,min=1,dive,gt=0"`
}

func NewBookingHandler(service booking.BookingUseCase, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{service: service, logger: logger}
}

// Register mounts the booking routes. checkout may be wrapped, typically
// with Idempotency.
func (h *BookingHandler) Register(router *gin.RouterGroup, checkout ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{RequireRole(domain.RoleUser)}, checkout...)
	router.POST("/checkout", append(chain, h.checkout)...)

	router.GET("/user", RequireRole(domain.RoleUser), h.listForStudent)
	router.GET("/mentor", RequireRole(domain.RoleMentor), h.listForMentor)
	router.GET("/all", RequireRole(domain.RoleAdmin), h.listAll)

	router.GET("/:id", h.get)
	router.DELETE("/:id/items/:itemId", h.cancelItem)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/confirm", RequireRole(domain.RoleMentor, domain.RoleAdmin), h.confirm)
	router.POST("/:id/complete", RequireRole(domain.RoleMentor, domain.RoleAdmin), h.complete)
}

// checkout answers 201 when every mentor group was booked, 207 when only
// some were, and the error of the first group when none were.
func (h *BookingHandler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := decodeStrict(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	result, err := h.service.Checkout(c.Request.Context(), actorFrom(c), req.CartItemIDs)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Partial() {
		status = http.StatusMultiStatus
	}
	c.JSON(status, newCheckoutResponse(result))
}

func (h *BookingHandler) listForStudent(c *gin.Context) {
	h.list(c, h.service.ListForStudent)
}

func (h *BookingHandler) listForMentor(c *gin.Context) {
	h.list(c, h.service.ListForMentor)
}

func (h *BookingHandler) listAll(c *gin.Context) {
	h.list(c, h.service.ListAll)
}

func (h *BookingHandler) list(c *gin.Context, fetch func(context.Context, domain.Actor) ([]domain.Booking, error)) {
	bookings, err := fetch(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingsResponse(bookings))
}

func (h *BookingHandler) get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	b, err := h.service.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(*b))
}

func (h *BookingHandler) cancelItem(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	itemID, err := parseID(c, "itemId")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	b, err := h.service.CancelBookingItem(c.Request.Context(), actorFrom(c), id, itemID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(*b))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	h.change(c, h.service.CancelBooking)
}

func (h *BookingHandler) confirm(c *gin.Context) {
	h.change(c, h.service.ConfirmBooking)
}

func (h *BookingHandler) complete(c *gin.Context) {
	h.change(c, h.service.CompleteBooking)
}

func (h *BookingHandler) change(c *gin.Context, apply func(context.Context, domain.Actor, int64) (*domain.Booking, error)) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	b, err := apply(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(*b))
}
