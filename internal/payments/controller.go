package payments

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"lodging/internal/reservations"
	"lodging/internal/shared/utils/response"
	"lodging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	genericInitiateError = "Payment could not be started, please retry"
	retryAfterSeconds    = 2
)

// Controller serves the payment endpoints. A nil coordinator means payments
// are not configured and every handler answers 503.
type Controller struct {
	coordinator Coordinator
}

func NewController(coordinator Coordinator) *Controller {
	return &Controller{coordinator: coordinator}
}

// InitiatePayment handles POST /api/v1/reservations/:id/payments
func (c *Controller) InitiatePayment(ctx *gin.Context) {
	if !c.enabled(ctx) {
		return
	}
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid reservation ID")
		return
	}

	payload, err := c.coordinator.Initiate(ctx.Request.Context(), id, optionalUserID(ctx))
	if err != nil {
		c.respondInitiateError(ctx, err)
		return
	}

	ctx.Header("Cache-Control", "no-store")
	if ctx.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		var buf bytes.Buffer
		if err := RenderForm(&buf, payload); err != nil {
			logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondError(ctx, http.StatusInternalServerError, genericInitiateError)
			return
		}
		ctx.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
		return
	}
	response.RespondJSON(ctx, "success", http.StatusCreated, "Payment session created", payload, nil)
}

// Callback handles POST /api/v1/payments/callback. The gateway only needs to
// know the delivery was processed, so business outcomes all answer 200.
func (c *Controller) Callback(ctx *gin.Context) {
	if !c.enabled(ctx) {
		return
	}
	if err := ctx.Request.ParseForm(); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid callback body")
		return
	}

	cb := callbackFromForm(ctx.Request.Form)
	_, err := c.coordinator.HandleCallback(ctx.Request.Context(), cb)
	switch {
	case err == nil,
		errors.Is(err, ErrUnknownSession),
		errors.Is(err, ErrSessionSuperseded),
		errors.Is(err, ErrFingerprintMismatch):
		ctx.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, ErrMissingSessionToken):
		response.RespondError(ctx, http.StatusBadRequest, "Missing session token")
	case errors.Is(err, ErrConcurrentUpdate):
		response.RespondRetryLater(ctx, "Callback could not be applied yet, retry", retryAfterSeconds)
	default:
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Callback could not be processed")
	}
}

// GetSession handles GET /api/v1/payments/sessions/:token
func (c *Controller) GetSession(ctx *gin.Context) {
	if !c.enabled(ctx) {
		return
	}
	session, err := c.coordinator.GetSession(ctx.Request.Context(), ctx.Param("token"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.RespondError(ctx, http.StatusNotFound, "Payment session not found")
			return
		}
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to get payment session")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Payment session retrieved successfully", session, nil)
}

// ListEvents handles GET /api/v1/admin/reservations/:id/payment-events
func (c *Controller) ListEvents(ctx *gin.Context) {
	if !c.enabled(ctx) {
		return
	}
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid reservation ID")
		return
	}
	events, err := c.coordinator.ListEvents(ctx.Request.Context(), id)
	if err != nil {
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to list payment events")
		return
	}
	response.RespondJSON(ctx, "success", http.StatusOK, "Payment events retrieved successfully", events, nil)
}

func (c *Controller) enabled(ctx *gin.Context) bool {
	if c.coordinator == nil {
		response.RespondError(ctx, http.StatusServiceUnavailable, "Payments are temporarily unavailable")
		return false
	}
	return true
}

// respondInitiateError keeps protocol and storage details out of the body.
func (c *Controller) respondInitiateError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, reservations.ErrReservationNotFound):
		response.RespondError(ctx, http.StatusNotFound, "Reservation not found")
	case errors.Is(err, ErrNotPayable):
		response.RespondError(ctx, http.StatusConflict, "Reservation is not awaiting payment")
	case errors.Is(err, ErrConcurrentUpdate):
		response.RespondRetryLater(ctx, genericInitiateError, retryAfterSeconds)
	case errors.Is(err, ErrProtocol):
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusBadGateway)
		response.RespondError(ctx, http.StatusBadGateway, genericInitiateError)
	default:
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, genericInitiateError)
	}
}

func callbackFromForm(form map[string][]string) Callback {
	raw := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) > 0 {
			raw[key] = values[0]
		}
	}
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(raw[k]); v != "" {
				return v
			}
		}
		return ""
	}
	return Callback{
		MerchantSession: get("MerchantSession", "merchantSession"),
		MerchantRef:     get("MerchantRef", "merchantRef"),
		ResponseCode:    get("ResponseCode", "responseCode"),
		ResponseMessage: get("ResponseMessage", "responseMessage"),
		Amount:          get("Amount", "amount"),
		FingerPrint:     get("FingerPrint", "fingerPrint"),
		TimeStamp:       get("TimeStamp", "timeStamp"),
		Raw:             raw,
	}
}

func optionalUserID(ctx *gin.Context) *uuid.UUID {
	raw, exists := ctx.Get("user_id")
	if !exists {
		return nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(str)
	if err != nil {
		return nil
	}
	return &id
}
