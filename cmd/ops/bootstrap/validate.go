package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v82"
)

// ValidationResult is what the operator sees after each input.
type ValidationResult struct {
	Valid   bool
	Message string
}

func pass(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Message: fmt.Sprintf(format, args...)}
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector proves a DSN reaches a live server and releases the
// connection before returning.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector opens a single pgx connection and pings it.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return conn.Ping(ctx)
}

// Validator checks operator input against the live services before it is
// written to Parameter Store.
type Validator struct {
	httpClient HTTPClient
	db         DatabaseConnector
	stripeURL  string
}

const probeTimeout = 15 * time.Second

func NewValidator() *Validator {
	return NewValidatorWithDeps(&http.Client{Timeout: 10 * time.Second}, PgxConnector{}, "https://api.stripe.com")
}

func NewValidatorWithDeps(httpClient HTTPClient, db DatabaseConnector, stripeURL string) *Validator {
	return &Validator{httpClient: httpClient, db: db, stripeURL: strings.TrimSuffix(stripeURL, "/")}
}

// ValidateDatabaseURL accepts postgres:// DSNs that accept a connection. The
// ledger tables themselves are created by the API with DB_ENSURE_SCHEMA.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, raw string) ValidationResult {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fail("database URL must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fail("invalid URL: %v", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fail("expected a postgres:// or postgresql:// URL, got scheme %q", u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := v.db.Connect(ctx, raw); err != nil {
		return fail("connection failed: %v", err)
	}
	return pass("connected to %s", u.Hostname())
}

var (
	stripeKeyPattern     = regexp.MustCompile(`^(sk|rk)_(test|live)_[0-9a-zA-Z]{24,}$`)
	webhookSecretPattern = regexp.MustCompile(`^whsec_[0-9a-zA-Z]{16,}$`)
)

// ValidateStripeKey checks the key shape and then reads /v1/account with it.
// The read has no side effects on the Stripe account.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return fail("Stripe secret key must not be empty")
	case !stripeKeyPattern.MatchString(key):
		return fail("expected sk_ or rk_ followed by test_ or live_ and at least 24 alphanumerics")
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.stripeURL+"/v1/account", nil)
	if err != nil {
		return fail("building probe: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	req.Header.Set("User-Agent", "MatchPass-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fail("Stripe probe failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fail("Stripe rejected the key (401): invalid or revoked")
	case resp.StatusCode != http.StatusOK:
		return fail("Stripe returned HTTP %d: %s", resp.StatusCode, clip(body, 200))
	}

	mode := "test"
	if strings.Contains(key, "_live_") {
		mode = "live"
	}
	var acct stripe.Account
	if json.Unmarshal(body, &acct) == nil && acct.ID != "" {
		return pass("Stripe key works in %s mode (account: %s)", mode, acct.ID)
	}
	return pass("Stripe key works in %s mode", mode)
}

// ValidateWebhookSecret only checks the shape. A signing secret can be
// exercised only by a real delivery.
func (v *Validator) ValidateWebhookSecret(_ context.Context, secret string) ValidationResult {
	if !webhookSecretPattern.MatchString(strings.TrimSpace(secret)) {
		return fail("expected whsec_ followed by at least 16 alphanumerics")
	}
	return pass("webhook signing secret looks well formed")
}

// ValidateQueueURL accepts https://sqs.<region>.amazonaws.com/<account>/<name>.
func (v *Validator) ValidateQueueURL(_ context.Context, raw string) ValidationResult {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || !strings.HasPrefix(u.Host, "sqs.") {
		return fail("expected an https://sqs.<region>.amazonaws.com/<account>/<queue> URL")
	}
	if parts := strings.Split(strings.Trim(u.Path, "/"), "/"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fail("queue URL path must be /<account>/<queue>")
	}
	return pass("queue URL looks well formed")
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
