package transport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/internal/service"
)

type AdminHandler struct {
	adminService    service.AdminService
	finalizeService service.FinalizeService
}

func NewAdminHandler(adminService service.AdminService, finalizeService service.FinalizeService) *AdminHandler {
	return &AdminHandler{
		adminService:    adminService,
		finalizeService: finalizeService,
	}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrTierNotFound), errors.Is(err, entity.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrInvalidInput), errors.Is(err, entity.ErrInvalidOrderStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// --- Catalog management ---

func (h *AdminHandler) CreateTier(c *gin.Context) {
	var tier entity.TicketTier
	if err := c.ShouldBindJSON(&tier); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.adminService.CreateTier(c.Request.Context(), &tier); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Success: true, Data: tier})
}

func (h *AdminHandler) GetAllTiers(c *gin.Context) {
	tiers, err := h.adminService.GetAllTiers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: tiers})
}

func (h *AdminHandler) UpdateTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var tier entity.TicketTier
	if err := c.ShouldBindJSON(&tier); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	tier.ID = id

	if err := h.adminService.UpdateTier(c.Request.Context(), &tier); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: tier})
}

func (h *AdminHandler) DeleteTier(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteTier(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "tier deleted"})
}

// --- Order management ---

func (h *AdminHandler) GetAllOrders(c *gin.Context) {
	orders, err := h.adminService.GetAllOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: orders})
}

func (h *AdminHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.adminService.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: order})
}

func (h *AdminHandler) OverwriteOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var order entity.Order
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	order.ID = id

	if err := h.adminService.OverwriteOrder(c.Request.Context(), &order); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: order})
}

// MarkPaid records a manual settlement against a pending order.
func (h *AdminHandler) MarkPaid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.finalizeService.MarkPaid(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "order marked paid"
	if !result.Finalized {
		message = "order was already paid"
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: message, Data: result})
}

// --- Participant management ---

// UpdateParticipant patches one participant's flags (attending,
// refunded, roster visibility) and rebuilds the order's attendee set.
func (h *AdminHandler) UpdateParticipant(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participant index"})
		return
	}

	var patch service.ParticipantPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if patch.Attending == nil && patch.Refunded == nil && patch.ShowOnRoster == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no participant fields to update"})
		return
	}

	order, err := h.adminService.UpdateParticipant(c.Request.Context(), orderID, index, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: order})
}

func (h *AdminHandler) DeleteParticipant(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid participant index"})
		return
	}

	order, err := h.adminService.DeleteParticipant(c.Request.Context(), orderID, index)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: order})
}

// ExportOrders streams the flattened order roster as a CSV download.
func (h *AdminHandler) ExportOrders(c *gin.Context) {
	data, err := h.adminService.ExportOrdersCSV(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="orders.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}
