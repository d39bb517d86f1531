package config

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *fakeSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_URL", "https://app.matchpass.test")
	t.Setenv("DATABASE_URL", "postgres://ledger:pw@localhost:5432/ledger")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test_456")
	t.Setenv("SERVICE_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuv")
}

// testEnv routes writes through t.Setenv so they are restored after the test.
func testEnv(t *testing.T) env {
	return env{
		lookup:  os.LookupEnv,
		environ: os.Environ,
		set: func(k, v string) error {
			t.Setenv(k, v)
			return nil
		},
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfig_LocalDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Ledger.DailyFreeCap)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.UnlockDuration)
	assert.Equal(t, RenewalReplace, cfg.Ledger.RenewalPolicy)
	assert.Equal(t, "NEWPROVIDER90", cfg.Ledger.PromoCode)
	assert.Equal(t, "provider", cfg.Ledger.PromoRole)
	assert.Equal(t, "sk_test_123", cfg.Billing.StripeSecretKey.Unmask())
	assert.Equal(t, "dev", cfg.Build.Version)
	assert.Empty(t, cfg.AWS.PaymentEventQueue)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGER_DAILY_FREE_CAP", "8")
	t.Setenv("LEDGER_RENEWAL_POLICY", "extend")
	t.Setenv("SQS_PAYMENT_EVENTS", "https://sqs.eu-north-1.amazonaws.com/123/payment-events")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Ledger.DailyFreeCap)
	assert.Equal(t, RenewalExtend, cfg.Ledger.RenewalPolicy)
	assert.Equal(t, "https://sqs.eu-north-1.amazonaws.com/123/payment-events", cfg.AWS.PaymentEventQueue)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad environment", "APP_ENV", "qa"},
		{"bad renewal policy", "LEDGER_RENEWAL_POLICY", "stack"},
		{"negative cap", "LEDGER_DAILY_FREE_CAP", "-1"},
		{"queue not a url", "SQS_PAYMENT_EVENTS", "payment-events"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig(nil)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, ErrValidation, cfgErr.Type)
		})
	}
}

func TestLoadConfig_ParseFailure(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGER_UNLOCK_DURATION", "a day")

	_, err := LoadConfig(nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestLoad_ResolvesSSMOutsideLocal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	unsetEnv(t, "STRIPE_SECRET_KEY")
	t.Setenv("STRIPE_SECRET_KEY_SSM_PARAM", "/prod/ledger/stripe/secret")

	provider := &fakeSecretProvider{values: map[string]string{"/prod/ledger/stripe/secret": "sk_live_resolved"}}
	cfg, err := load(provider, testEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "sk_live_resolved", cfg.Billing.StripeSecretKey.Unmask())
	assert.Equal(t, []string{"/prod/ledger/stripe/secret"}, provider.calledWith)
}

func TestResolveSSMParams_EnvWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://direct")
	t.Setenv("DATABASE_URL_SSM_PARAM", "/prod/ledger/db")

	provider := &fakeSecretProvider{values: map[string]string{"/prod/ledger/db": "postgres://ssm"}}
	require.NoError(t, resolveSSMParams(provider, testEnv(t)))

	assert.Empty(t, provider.calledWith)
	assert.Equal(t, "postgres://direct", os.Getenv("DATABASE_URL"))
}

func TestResolveSSMParams_Errors(t *testing.T) {
	t.Run("nil provider", func(t *testing.T) {
		unsetEnv(t, "STRIPE_WEBHOOK_SECRET")
		t.Setenv("STRIPE_WEBHOOK_SECRET_SSM_PARAM", "/prod/ledger/stripe/whsec")

		err := resolveSSMParams(nil, testEnv(t))
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, ErrSSMResolution, cfgErr.Type)
		assert.Contains(t, cfgErr.Message, "STRIPE_WEBHOOK_SECRET")
	})

	t.Run("provider failure", func(t *testing.T) {
		unsetEnv(t, "STRIPE_WEBHOOK_SECRET")
		t.Setenv("STRIPE_WEBHOOK_SECRET_SSM_PARAM", "/prod/ledger/stripe/whsec")

		err := resolveSSMParams(&fakeSecretProvider{err: errors.New("throttled")}, testEnv(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "throttled")
	})

	t.Run("missing parameter", func(t *testing.T) {
		unsetEnv(t, "STRIPE_WEBHOOK_SECRET")
		t.Setenv("STRIPE_WEBHOOK_SECRET_SSM_PARAM", "/prod/ledger/stripe/whsec")

		err := resolveSSMParams(&fakeSecretProvider{values: map[string]string{}}, testEnv(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SSM parameters not found for: STRIPE_WEBHOOK_SECRET")
	})
}

func TestLoadWorkerConfig_NoHTTPSettingsRequired(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("DATABASE_URL", "postgres://ledger:pw@localhost:5432/ledger")
	t.Setenv("LEDGER_DAILY_FREE_CAP", "7")
	unsetEnv(t, "APP_URL")
	unsetEnv(t, "STRIPE_SECRET_KEY")
	unsetEnv(t, "SERVICE_KEY_HASH")

	cfg, err := LoadWorkerConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Ledger.DailyFreeCap)
	assert.Equal(t, "MatchPass/Ledger", cfg.Observability.MetricNamespace)
	assert.Equal(t, "postgres://ledger:pw@localhost:5432/ledger", cfg.Database.URL.Unmask())
}

func TestLoadWorkerConfig_RequiresDatabase(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	unsetEnv(t, "DATABASE_URL")

	_, err := LoadWorkerConfig(nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrValidation, cfgErr.Type)
}
