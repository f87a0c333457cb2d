package api

import (
	"net/http"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/service/cart"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CartHandler struct {
	service cart.CartUseCase
	logger  *zap.Logger
}

type addCartItemRequest struct {
	SlotID int64 `json:"slotId" binding:"required,gt=0"`
}

func NewCartHandler(service cart.CartUseCase, logger *zap.Logger) *CartHandler {
	return &CartHandler{service: service, logger: logger}
}

// Register mounts the cart routes. Every route requires the USER role.
func (h *CartHandler) Register(router *gin.RouterGroup) {
	router.Use(RequireRole(domain.RoleUser))
	router.POST("", h.add)
	router.GET("", h.list)
	router.DELETE("/clearCart", h.clear)
	router.DELETE("/:id", h.remove)
}

func (h *CartHandler) add(c *gin.Context) {
	var req addCartItemRequest
	if err := decodeStrict(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	item, err := h.service.AddItem(c.Request.Context(), actorFrom(c), req.SlotID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newCartItemResponse(*item))
}

func (h *CartHandler) list(c *gin.Context) {
	view, err := h.service.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(view))
}

func (h *CartHandler) remove(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if err := h.service.RemoveItem(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *CartHandler) clear(c *gin.Context) {
	result, err := h.service.Clear(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newClearCartResponse(result))
}
