package api

import (
	"net/http"

	"github.com/Domenick1991/mentorbooking/internal/domain"
	"github.com/Domenick1991/mentorbooking/internal/service/slots"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SlotHandler struct {
	service slots.SlotUseCase
	logger  *zap.Logger
}

type openSlotRequest struct {
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
	StartTime string `json:"startTime" binding:"required,datetime=15:04"`
}

func NewSlotHandler(service slots.SlotUseCase, logger *zap.Logger) *SlotHandler {
	return &SlotHandler{service: service, logger: logger}
}

func (h *SlotHandler) Register(router *gin.RouterGroup) {
	mentorOnly := RequireRole(domain.RoleMentor)
	router.POST("/open", mentorOnly, h.open)
	router.DELETE("/close/:id", mentorOnly, h.close)
	router.GET("/mine", mentorOnly, h.mine)
	router.GET("/mentor/:id", h.listAvailable)
}

func (h *SlotHandler) open(c *gin.Context) {
	var req openSlotRequest
	if err := decodeStrict(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}

	slot, err := h.service.OpenSlot(c.Request.Context(), actorFrom(c), req.Date, req.StartTime)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newSlotResponse(*slot))
}

func (h *SlotHandler) close(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	slot, err := h.service.CloseSlot(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newSlotResponse(*slot))
}

func (h *SlotHandler) listAvailable(c *gin.Context) {
	mentorID, err := parseID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	list, err := h.service.ListAvailable(c.Request.Context(), mentorID, c.Query("date"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newSlotsResponse(list))
}

func (h *SlotHandler) mine(c *gin.Context) {
	list, err := h.service.ListMentorSlots(c.Request.Context(), actorFrom(c), c.Query("date"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newSlotsResponse(list))
}
