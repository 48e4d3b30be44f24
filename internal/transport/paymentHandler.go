package transport

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ohana-reunion/backend/internal/entity"
	"github.com/ohana-reunion/backend/internal/service"
	"github.com/ohana-reunion/backend/pkg/payment"
)

// maxWebhookBody caps webhook payload reads; provider events are small.
const maxWebhookBody = 1 << 20

const signatureHeader = "Payment-Signature"

type PaymentHandler struct {
	finalizeService service.FinalizeService
	provider        *payment.Client
	confirmationURL string
}

func NewPaymentHandler(finalizeService service.FinalizeService, provider *payment.Client, confirmationURL string) *PaymentHandler {
	return &PaymentHandler{
		finalizeService: finalizeService,
		provider:        provider,
		confirmationURL: confirmationURL,
	}
}

// CheckoutReturn handles the registrant's browser coming back from the
// hosted payment page. It verifies the session with the provider,
// finalizes if the payment settled, and sends the browser on to the
// confirmation page either way. The webhook covers the case where the
// browser never comes back.
func (h *PaymentHandler) CheckoutReturn(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "session_id is required"})
		return
	}

	result, err := h.finalizeService.FinalizeBySession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, entity.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no order for this checkout session"})
			return
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("return-path finalize failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to confirm payment"})
		return
	}

	c.Redirect(http.StatusFound, h.redirectTarget(result.Order))
}

// CheckoutCancel handles the registrant backing out of the hosted payment
// page. The pending order is closed out so the abandoned session cannot
// linger, and the browser lands on the confirmation page showing the
// canceled order.
func (h *PaymentHandler) CheckoutCancel(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "session_id is required"})
		return
	}

	order, err := h.finalizeService.CancelBySession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, entity.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no order for this checkout session"})
			return
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("cancel-path handling failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to cancel checkout"})
		return
	}

	c.Redirect(http.StatusFound, h.redirectTarget(order))
}

func (h *PaymentHandler) redirectTarget(order *entity.Order) string {
	base := h.confirmationURL
	if base == "" {
		base = "/confirmation"
	}
	q := url.Values{}
	q.Set("order", order.Reference.String())
	q.Set("status", string(order.Status))
	q.Set("method", string(order.PaymentMethod))
	q.Set("amount", strconv.FormatInt(order.TotalCents, 10))
	return base + "?" + q.Encode()
}

// Webhook receives signed provider events. Signature failures are 400,
// events for unknown orders 404; a failed finalize returns 500 so the
// provider retries the delivery.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read payload"})
		return
	}

	event, err := h.provider.VerifyAndParseEvent(body, c.GetHeader(signatureHeader), time.Now())
	if err != nil {
		logrus.WithError(err).Warn("rejected webhook delivery")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid webhook signature"})
		return
	}

	if err := h.finalizeService.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, entity.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no order for this event"})
			return
		}
		logrus.WithError(err).WithField("event_id", event.ID).Error("webhook processing failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
