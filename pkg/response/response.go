package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rentwheel/service-rental/pkg/domain"
)

// Envelope is the standard JSON body for non-reconciliation endpoints.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Meta    *PageMeta   `json:"meta,omitempty"`
}

// PageMeta describes one page of a listing.
type PageMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Success writes a 200 envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 envelope with paging metadata.
func Paginated(c *gin.Context, data interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &PageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages},
	})
}

// BadRequest writes a 400 error body.
func BadRequest(c *gin.Context, msg string) {
	Fail(c, http.StatusBadRequest, msg)
}

// Unauthorized writes a 401 error body and aborts the chain.
func Unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Envelope{Success: false, Error: msg})
}

// Fail writes an error body with an explicit status.
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Envelope{Success: false, Error: msg})
}

// Error maps a domain error onto an HTTP status and writes it.
func Error(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	Fail(c, status, msg)
}

// StatusFor classifies err into an HTTP status and a caller-safe message.
func StatusFor(err error) (int, string) {
	var (
		validationErr   *domain.ValidationError
		unauthorizedErr *domain.UnauthorizedError
		notFoundErr     *domain.NotFoundError
		forbiddenErr    *domain.ForbiddenError
		conflictErr     *domain.ConflictError
		stateErr        *domain.InvalidStateError
		gatewayErr      *domain.GatewayError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.As(err, &unauthorizedErr):
		return http.StatusUnauthorized, unauthorizedErr.Message
	case domain.IsNotFoundOrUnauthorized(err):
		return http.StatusNotFound, domain.ErrNotFoundOrUnauthorized.Error()
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, notFoundErr.Error()
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden, forbiddenErr.Message
	case errors.As(err, &conflictErr):
		return http.StatusConflict, conflictErr.Message
	case errors.As(err, &stateErr):
		return http.StatusUnprocessableEntity, stateErr.Error()
	case errors.As(err, &gatewayErr):
		return http.StatusBadGateway, "payment gateway unavailable, please retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
