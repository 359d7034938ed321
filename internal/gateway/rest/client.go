package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rentwheel/service-rental/internal/domain/payment"
	"github.com/rentwheel/service-rental/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Client reads payments from a REST payments API authenticated with HTTP basic auth,
// where the secret key is the username and the password is empty.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client. A zero timeout falls back to 15s.
func NewClient(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type paymentSource struct {
	Message        string `json:"message"`
	TransactionURL string `json:"transaction_url"`
}

type paymentBody struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Source   *paymentSource    `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

// FetchPayment issues GET {base}/v1/payments/{id}.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	if paymentID == "" {
		return nil, domain.NewValidationError("paymentId is required")
	}
	if c.secretKey == "" {
		return nil, domain.NewGatewayUnavailableError(0, errors.New("missing gateway secret key"))
	}

	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewGatewayUnavailableError(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.secretKey, "")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewGatewayUnavailableError(0, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewGatewayUnavailableError(res.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Warn("gateway returned non-success status",
			zap.String("payment_id", paymentID),
			zap.Int("upstream_status", res.StatusCode),
		)
		return nil, domain.NewGatewayUnavailableError(res.StatusCode, fmt.Errorf("fetch payment %s failed", paymentID))
	}

	var pb paymentBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return nil, domain.NewGatewayProtocolError(fmt.Errorf("decode payment: %w", err))
	}
	if pb.ID == "" || pb.Status == "" {
		return nil, domain.NewGatewayProtocolError(errors.New("payment response missing id or status"))
	}

	p := &payment.Payment{
		ID:       pb.ID,
		Status:   payment.Status(pb.Status),
		Amount:   pb.Amount,
		Currency: pb.Currency,
		Metadata: pb.Metadata,
	}
	if pb.Source != nil {
		p.FailureMessage = pb.Source.Message
		p.TransactionURL = pb.Source.TransactionURL
	}
	return p, nil
}
