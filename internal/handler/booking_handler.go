package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/pkg/auth"
	"github.com/rentwheel/service-rental/pkg/domain"
	"github.com/rentwheel/service-rental/pkg/middleware"
	"github.com/rentwheel/service-rental/pkg/response"
)

// BookingReader serves the customer and admin booking reads.
type BookingReader interface {
	GetCustomerBooking(ctx context.Context, bookingID, customerID uuid.UUID) (*application.BookingDTO, error)
	ListAllBookings(ctx context.Context, page, limit int) (*domain.PaginatedResult[application.BookingDTO], error)
	GetBookingStats(ctx context.Context) (*application.BookingStatsDTO, error)
	GetBookingLedger(ctx context.Context, bookingID uuid.UUID) ([]application.LedgerEntryDTO, error)
}

// BookingHandler handles HTTP requests for customer booking reads.
type BookingHandler struct {
	service BookingReader
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service BookingReader) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	bookings := r.Group("/api/v1/bookings")
	bookings.Use(middleware.AuthMiddleware(jwtManager))
	{
		bookings.GET("/:id", middleware.RequireRole(auth.RoleCustomer), h.GetBooking)
	}
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	result, err := h.service.GetCustomerBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
