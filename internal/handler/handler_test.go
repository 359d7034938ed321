package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwheel/service-rental/internal/application"
	"github.com/rentwheel/service-rental/pkg/auth"
	"github.com/rentwheel/service-rental/pkg/domain"
)

type stubVerifier struct {
	calls   int
	gotUser uuid.UUID
	gotReq  application.VerifyPaymentRequest
	outcome *application.ReconciliationOutcome
	err     error
}

func (s *stubVerifier) VerifyPayment(_ context.Context, callerID uuid.UUID, req application.VerifyPaymentRequest) (*application.ReconciliationOutcome, error) {
	s.calls++
	s.gotUser = callerID
	s.gotReq = req
	return s.outcome, s.err
}

type stubReader struct {
	booking *application.BookingDTO
	page    *domain.PaginatedResult[application.BookingDTO]
	stats   *application.BookingStatsDTO
	ledger  []application.LedgerEntryDTO
	err     error
}

func (s *stubReader) GetCustomerBooking(context.Context, uuid.UUID, uuid.UUID) (*application.BookingDTO, error) {
	return s.booking, s.err
}

func (s *stubReader) ListAllBookings(context.Context, int, int) (*domain.PaginatedResult[application.BookingDTO], error) {
	return s.page, s.err
}

func (s *stubReader) GetBookingStats(context.Context) (*application.BookingStatsDTO, error) {
	return s.stats, s.err
}

func (s *stubReader) GetBookingLedger(context.Context, uuid.UUID) ([]application.LedgerEntryDTO, error) {
	return s.ledger, s.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(t *testing.T, verifier PaymentVerifier, reader BookingReader) (*gin.Engine, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	r := gin.New()
	api := r.Group("")
	NewPaymentHandler(verifier).RegisterRoutes(api, jwtManager)
	NewBookingHandler(reader).RegisterRoutes(api, jwtManager)
	NewAdminBookingHandler(reader).RegisterRoutes(api, jwtManager)
	return r, jwtManager
}

func token(t *testing.T, m *auth.JWTManager, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := m.GenerateAccessToken(userID, role, "user@example.com")
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(r *gin.Engine, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyPayment_Success(t *testing.T) {
	v := &stubVerifier{outcome: &application.ReconciliationOutcome{
		Success: true, Status: "initiated", BookingStatus: "payment_pending",
		Message: "Payment is still processing.", TransactionURL: "https://3ds.example",
	}}
	r, jm := newRouter(t, v, &stubReader{})
	user := uuid.New()
	bookingID := uuid.NewString()

	w := do(r, http.MethodPost, "/api/v1/payments/verify", token(t, jm, user, auth.RoleCustomer),
		map[string]string{"paymentId": "pay_1", "bookingId": bookingID})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true, "status": "initiated", "bookingStatus": "payment_pending",
		"message": "Payment is still processing.", "transactionUrl": "https://3ds.example"
	}`, w.Body.String())
	assert.Equal(t, user, v.gotUser)
	assert.Equal(t, "pay_1", v.gotReq.PaymentID)
	assert.Equal(t, bookingID, v.gotReq.BookingID)
}

func TestVerifyPayment_OmitsEmptyTransactionURL(t *testing.T) {
	v := &stubVerifier{outcome: &application.ReconciliationOutcome{Success: true, Status: "paid", BookingStatus: "active"}}
	r, jm := newRouter(t, v, &stubReader{})

	w := do(r, http.MethodPost, "/api/v1/payments/verify", token(t, jm, uuid.New(), auth.RoleCustomer),
		map[string]string{"paymentId": "pay_1", "bookingId": uuid.NewString()})

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "transactionUrl")
}

func TestVerifyPayment_Unauthenticated(t *testing.T) {
	v := &stubVerifier{}
	r, _ := newRouter(t, v, &stubReader{})

	w := do(r, http.MethodPost, "/api/v1/payments/verify", "", map[string]string{"paymentId": "p", "bookingId": "b"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success": false, "error": "missing or malformed bearer token"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/v1/payments/verify", "Bearer garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, v.calls)
}

func TestVerifyPayment_AdminRoleForbidden(t *testing.T) {
	v := &stubVerifier{}
	r, jm := newRouter(t, v, &stubReader{})

	w := do(r, http.MethodPost, "/api/v1/payments/verify", token(t, jm, uuid.New(), auth.RoleAdmin),
		map[string]string{"paymentId": "p", "bookingId": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, v.calls)
}

func TestVerifyPayment_MalformedBody(t *testing.T) {
	v := &stubVerifier{}
	r, jm := newRouter(t, v, &stubReader{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/verify", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", token(t, jm, uuid.New(), auth.RoleCustomer))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, v.calls)
}

func TestVerifyPayment_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", domain.NewValidationError("paymentId and bookingId are required"), http.StatusBadRequest},
		{"not owned", domain.ErrNotFoundOrUnauthorized, http.StatusNotFound},
		{"gateway down", domain.NewGatewayUnavailableError(503, errors.New("down")), http.StatusBadGateway},
		{"gateway garbage", domain.NewGatewayProtocolError(errors.New("bad json")), http.StatusBadGateway},
		{"mismatch", domain.NewConflictError("payment does not belong to this booking"), http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, jm := newRouter(t, &stubVerifier{err: tt.err}, &stubReader{})
			w := do(r, http.MethodPost, "/api/v1/payments/verify", token(t, jm, uuid.New(), auth.RoleCustomer),
				map[string]string{"paymentId": "p", "bookingId": uuid.NewString()})

			assert.Equal(t, tt.status, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetBooking(t *testing.T) {
	id := uuid.New()
	reader := &stubReader{booking: &application.BookingDTO{ID: id, LifecycleState: "active"}}
	r, jm := newRouter(t, &stubVerifier{}, reader)

	w := do(r, http.MethodGet, "/api/v1/bookings/"+id.String(), token(t, jm, uuid.New(), auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lifecycle_state":"active"`)

	w = do(r, http.MethodGet, "/api/v1/bookings/not-a-uuid", token(t, jm, uuid.New(), auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reader.err = domain.ErrNotFoundOrUnauthorized
	w = do(r, http.MethodGet, "/api/v1/bookings/"+id.String(), token(t, jm, uuid.New(), auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	page := domain.NewPaginatedResult([]application.BookingDTO{{ID: uuid.New()}}, 41, 2, 20)
	reader := &stubReader{
		page:   &page,
		stats:  &application.BookingStatsDTO{TotalBookings: 41, ByState: map[string]int64{"active": 41}},
		ledger: []application.LedgerEntryDTO{{Kind: "activation", PaymentReference: "pay_1"}},
	}
	r, jm := newRouter(t, &stubVerifier{}, reader)
	admin := token(t, jm, uuid.New(), auth.RoleAdmin)

	w := do(r, http.MethodGet, "/api/v1/admin/bookings?page=2", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Meta    struct {
			Total      int64 `json:"total"`
			TotalPages int   `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, int64(41), body.Meta.Total)
	assert.Equal(t, 3, body.Meta.TotalPages)

	w = do(r, http.MethodGet, "/api/v1/admin/stats/bookings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_bookings":41`)

	w = do(r, http.MethodGet, "/api/v1/admin/bookings/"+uuid.NewString()+"/ledger", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"activation"`)

	w = do(r, http.MethodGet, "/api/v1/admin/bookings", token(t, jm, uuid.New(), auth.RoleCustomer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
