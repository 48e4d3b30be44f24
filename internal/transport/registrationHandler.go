package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/internal/service"
)

type RegistrationHandler struct {
	checkoutService service.CheckoutService
}

func NewRegistrationHandler(checkoutService service.CheckoutService) *RegistrationHandler {
	return &RegistrationHandler{checkoutService: checkoutService}
}

// SuccessResponse is the common success envelope
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the common error envelope
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// GetTiers returns the active catalog the registration form renders.
func (h *RegistrationHandler) GetTiers(c *gin.Context) {
	tiers, err := h.checkoutService.ListActiveTiers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load ticket tiers"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: tiers})
}

// SubmitRegistration accepts a registration submission. Rejections come
// back as 422 with the machine-readable reason code so the form can point
// at the exact problem.
func (h *RegistrationHandler) SubmitRegistration(c *gin.Context) {
	var req service.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.checkoutService.SubmitRegistration(c.Request.Context(), &req)
	if err != nil {
		if rej, ok := entity.AsRejection(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success":   false,
				"rejection": rej,
			})
			return
		}
		if errors.Is(err, entity.ErrTierNotFound) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process registration"})
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Message: "registration created",
		Data:    result,
	})
}

// GetOrder returns one order by its public reference so the confirmation
// page can render what was bought and what is owed.
func (h *RegistrationHandler) GetOrder(c *gin.Context) {
	ref, err := uuid.Parse(c.Param("reference"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order reference"})
		return
	}

	order, err := h.checkoutService.GetOrderByReference(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, entity.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load order"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: order})
}

// QuoteSubmission prices a submission without creating an order, for the
// live total shown while the form is being filled in.
func (h *RegistrationHandler) QuoteSubmission(c *gin.Context) {
	// Quotes happen while the form is incomplete, so only the JSON shape
	// is enforced here, not the required fields.
	var req service.SubmissionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	quote, err := h.checkoutService.QuoteSubmission(c.Request.Context(), &req)
	if err != nil {
		if rej, ok := entity.AsRejection(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success":   false,
				"rejection": rej,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to price submission"})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true, Data: quote})
}
