package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/crypto/bcrypt"
)

type mockSSMClient struct {
	params map[string]string
	types  map[string]ssmtypes.ParameterType
	putErr error
}

func newMockSSM() *mockSSMClient {
	return &mockSSMClient{params: map[string]string{}, types: map[string]ssmtypes.ParameterType{}}
}

func (m *mockSSMClient) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	v, ok := m.params[aws.ToString(in.Name)]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name, Value: aws.String(v)}}, nil
}

func (m *mockSSMClient) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	name := aws.ToString(in.Name)
	if _, exists := m.params[name]; exists && !aws.ToBool(in.Overwrite) {
		return nil, &ssmtypes.ParameterAlreadyExists{}
	}
	m.params[name] = aws.ToString(in.Value)
	m.types[name] = in.Type
	return &ssm.PutParameterOutput{}, nil
}

type okConnector struct{ err error }

func (c okConnector) Connect(context.Context, string) error { return c.err }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestRunner(client *mockSSMClient, stdin string) (*BootstrapRunner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	r := &BootstrapRunner{
		SSM:       NewSSMManager(client, "dev", discardLogger()),
		Validator: NewValidatorWithDeps(http.DefaultClient, okConnector{}, "http://unused"),
		Stdin:     strings.NewReader(stdin),
		Stderr:    out,
	}
	return r, out
}

func TestSSMPath(t *testing.T) {
	m := NewSSMManager(newMockSSM(), "staging", discardLogger())
	if got := m.SSMPath("database/url"); got != "/staging/matchpass/database/url" {
		t.Errorf("SSMPath = %q", got)
	}
}

func TestPutSecret_RefusesEmptyValue(t *testing.T) {
	m := NewSSMManager(newMockSSM(), "dev", discardLogger())
	if err := m.PutSecret(context.Background(), "/dev/matchpass/x", "", false); err == nil {
		t.Fatal("expected error for empty value")
	}
}

func TestRun_GeneratesServiceKeyAndHash(t *testing.T) {
	client := newMockSSM()
	r, out := newTestRunner(client, "")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[3]}

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected key and hash results, got %+v", results)
	}

	key := client.params["/dev/matchpass/security/service_key"]
	hash := client.params["/dev/matchpass/security/service_key_hash"]
	if len(key) != 64 {
		t.Errorf("expected 64-char key, got %d", len(key))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Errorf("stored hash does not verify stored key: %v", err)
	}
	if client.types["/dev/matchpass/security/service_key_hash"] != ssmtypes.ParameterTypeSecureString {
		t.Error("hash must be stored as SecureString")
	}
	if !strings.Contains(out.String(), "SERVICE_KEY_HASH_SSM_PARAM=/dev/matchpass/security/service_key_hash") {
		t.Errorf("summary missing pointer line:\n%s", out.String())
	}
	if strings.Contains(out.String(), key) {
		t.Error("generated key must not be printed")
	}
}

func TestRun_PromptRetriesUntilValid(t *testing.T) {
	client := newMockSSM()
	r, _ := newTestRunner(client, "mysql://nope\npostgres://u:p@db:5432/matchpass\n")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[0]}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := client.params["/dev/matchpass/database/url"]; got != "postgres://u:p@db:5432/matchpass" {
		t.Errorf("stored %q", got)
	}
}

func TestRun_ExistingParameterSkipped(t *testing.T) {
	client := newMockSSM()
	client.params["/dev/matchpass/database/url"] = "postgres://old"
	r, _ := newTestRunner(client, "s\n")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[0]}

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Action != "skipped" || client.params["/dev/matchpass/database/url"] != "postgres://old" {
		t.Errorf("expected untouched skip, got %+v", results)
	}
}

func TestRun_ExistingParameterOverwritten(t *testing.T) {
	client := newMockSSM()
	client.params["/dev/matchpass/billing/stripe_webhook_secret"] = "whsec_old"
	r, _ := newTestRunner(client, "o\nwhsec_abcdefghijklmnop1234\n")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[2]}

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Action != "overwritten" {
		t.Errorf("action = %s", results[0].Action)
	}
	if client.params["/dev/matchpass/billing/stripe_webhook_secret"] != "whsec_abcdefghijklmnop1234" {
		t.Error("secret not overwritten")
	}
}

func TestRun_OptionalEmptyInputSkips(t *testing.T) {
	client := newMockSSM()
	r, _ := newTestRunner(client, "\n")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[4]}

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Action != "skipped" || len(client.params) != 0 {
		t.Errorf("expected skip, got %+v", results)
	}
}

func TestRun_SkipOptionalFlag(t *testing.T) {
	client := newMockSSM()
	r, _ := newTestRunner(client, "")
	r.SkipOptional = true
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[4]}

	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].Action != "skipped" {
		t.Errorf("action = %s", results[0].Action)
	}
}

func TestRun_MaxRetriesExceeded(t *testing.T) {
	r, _ := newTestRunner(newMockSSM(), strings.Repeat("whsec_short\n", maxRetries))
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[2]}

	if _, err := r.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "maximum retries") {
		t.Fatalf("expected max retries error, got %v", err)
	}
}

func TestRun_SSMWriteFailure(t *testing.T) {
	client := newMockSSM()
	client.putErr = errors.New("AccessDenied")
	r, _ := newTestRunner(client, "")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[3]}

	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected write failure to abort the run")
	}
}

func TestValidateStripeKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/account" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_aaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id":"acct_123"}`))
	}))
	defer srv.Close()

	v := NewValidatorWithDeps(srv.Client(), okConnector{}, srv.URL)

	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"valid test key", "sk_test_aaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"revoked key", "sk_test_bbbbbbbbbbbbbbbbbbbbbbbbbbbb", false},
		{"publishable key", "pk_test_aaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateStripeKey(context.Background(), tt.key)
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, message %q", res.Valid, res.Message)
			}
		})
	}

	res := v.ValidateStripeKey(context.Background(), "sk_test_aaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if !strings.Contains(res.Message, "acct_123") || !strings.Contains(res.Message, "test mode") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestValidateDatabaseURL_ConnectFailure(t *testing.T) {
	v := NewValidatorWithDeps(http.DefaultClient, okConnector{err: errors.New("refused")}, "")
	res := v.ValidateDatabaseURL(context.Background(), "postgres://u:p@db/x")
	if res.Valid || !strings.Contains(res.Message, "refused") {
		t.Errorf("got %+v", res)
	}
}

type fakeSTS struct{ err error }

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012"), Arn: aws.String("arn:aws:iam::123456789012:user/ops")}, nil
}

func TestVerifyIdentity(t *testing.T) {
	s, err := verifyIdentity(context.Background(), fakeSTS{}, "dev", "", "us-east-1")
	if err != nil {
		t.Fatalf("verifyIdentity: %v", err)
	}
	if s.AccountID != "123456789012" || s.Environment != "dev" {
		t.Errorf("session = %+v", s)
	}

	if _, err := verifyIdentity(context.Background(), fakeSTS{err: errors.New("expired")}, "dev", "p", "r"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfirmProduction(t *testing.T) {
	s := &Session{Environment: "prod"}
	if !confirmProduction(strings.NewReader("YES\n"), io.Discard, s) {
		t.Error("expected confirmation")
	}
	if confirmProduction(strings.NewReader("y\n"), io.Discard, s) {
		t.Error("only 'yes' confirms")
	}
}

func TestValidateQueueURL(t *testing.T) {
	v := NewValidatorWithDeps(http.DefaultClient, okConnector{}, "")
	cases := map[string]bool{
		"https://sqs.eu-north-1.amazonaws.com/123456789012/payment-events": true,
		"http://sqs.eu-north-1.amazonaws.com/123456789012/payment-events":  false,
		"https://sqs.eu-north-1.amazonaws.com/payment-events":              false,
		"https://example.com/123/q":                                        false,
		"":                                                                 false,
	}
	for in, want := range cases {
		if got := v.ValidateQueueURL(context.Background(), in); got.Valid != want {
			t.Errorf("ValidateQueueURL(%q) = %+v, want valid=%v", in, got, want)
		}
	}
}

func TestRun_OptionalQueueWritten(t *testing.T) {
	client := newMockSSM()
	r, _ := newTestRunner(client, "https://sqs.eu-north-1.amazonaws.com/123456789012/payment-events\n")
	r.inventoryOverride = []BootstrapStep{BuildInventory(r.Validator)[4]}

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := client.params["/dev/matchpass/aws/payment_events_queue"]; got == "" {
		t.Errorf("queue URL not written: %v", client.params)
	}
}
