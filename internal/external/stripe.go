package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"matchpass/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient opens one-time Checkout Sessions by calling the Stripe REST
// API through BaseClient, so every request gets the breaker, retries and
// error mapping.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient. The httpClient timeout should be
// about 20 seconds.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"MatchPass-Ledger/1.0",
		WithIdempotencyHeader("Idempotency-Key"),
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreateCheckoutSession opens a payment-mode Checkout Session for one unit of
// in.PriceID. The account id goes in client_reference_id and, with the
// product code and optional target/venue, in the session metadata; the
// webhook receiver reads them back to build the fulfillment request.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, in types.CheckoutSessionInput) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("client_reference_id", in.AccountID)
	params.Set("success_url", in.SuccessURL)
	params.Set("cancel_url", in.CancelURL)
	params.Set("line_items[0][price]", in.PriceID)
	params.Set("line_items[0][quantity]", "1")

	meta := map[string]string{
		types.MetaAccountID:   in.AccountID,
		types.MetaProductCode: in.ProductCode,
		types.MetaTargetID:    in.TargetID,
		types.MetaVenueID:     in.VenueID,
	}
	for k, v := range meta {
		if v == "" {
			continue
		}
		params.Set("metadata["+k+"]", v)
		// Mirror onto the payment intent so refunds can be traced without
		// the session.
		params.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripe.CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode Stripe checkout session response", err)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"account_id", in.AccountID,
		"product_code", in.ProductCode,
		"session_id", session.ID,
	)
	return &types.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doPost performs an authenticated POST request to the Stripe API with form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode), readErr)
	}

	var se stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &se); jsonErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode), jsonErr)
	}

	// A bad price id or parameter is the caller's mistake, not an outage.
	if resp.StatusCode == http.StatusBadRequest && se.Error.Type == "invalid_request_error" {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("%s: %s", operation, se.Error.Message), nil,
			map[string]any{"param": se.Error.Param, "stripe_code": se.Error.Code})
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, se.Error.Message), nil)
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err), err)
}

// WebhookVerifier checks a Stripe-Signature header against the endpoint's
// signing secret.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier uses stripe-go's HMAC-SHA256 check with the default
// five-minute timestamp tolerance.
type StripeVerifier struct{}

func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}

var _ WebhookVerifier = (*StripeVerifier)(nil)
