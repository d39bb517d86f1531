package types

import (
	"log/slog"
	"strconv"
)

const redactedPlaceholder = "[redacted]"

// SecretString holds credentials such as the Stripe key, the webhook signing
// secret and the service key hash. Every formatting path (fmt, JSON, slog)
// prints a placeholder; Unmask is the only way to the raw value.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

func (s SecretString) GoString() string { return strconv.Quote(redactedPlaceholder) }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(redactedPlaceholder)), nil
}

// LogValue keeps secrets out of slog output even when logged as a struct field.
func (s SecretString) LogValue() slog.Value { return slog.StringValue(redactedPlaceholder) }

// IsSet reports whether a value was configured, without exposing it.
func (s SecretString) IsSet() bool { return s != "" }

// Unmask returns the plaintext. Call it only at the point of use.
func (s SecretString) Unmask() string { return string(s) }
