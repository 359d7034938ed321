package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/pkg/auth"
	"github.com/rentwheel/service-rental/pkg/middleware"
	"github.com/rentwheel/service-rental/pkg/response"
)

// PaymentVerifier runs one reconciliation pass for the authenticated caller.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, callerID uuid.UUID, req application.VerifyPaymentRequest) (*application.ReconciliationOutcome, error)
}

// PaymentHandler handles payment verification requests.
type PaymentHandler struct {
	verifier PaymentVerifier
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(verifier PaymentVerifier) *PaymentHandler {
	return &PaymentHandler{verifier: verifier}
}

// RegisterRoutes registers payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	payments := r.Group("/api/v1/payments")
	payments.Use(middleware.AuthMiddleware(jwtManager))
	{
		payments.POST("/verify", middleware.RequireRole(auth.RoleCustomer), h.VerifyPayment)
	}
}

// VerifyPayment handles POST /api/v1/payments/verify.
// The success body is the reconciliation outcome itself, not the usual envelope.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	outcome, err := h.verifier.VerifyPayment(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}
