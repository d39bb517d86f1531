package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// ssmCallTimeout is generous because IAM grants on a fresh account can take
// several seconds to apply.
const ssmCallTimeout = 15 * time.Second

// ErrParameterExists is returned when a write without overwrite hits an
// existing parameter.
var ErrParameterExists = errors.New("parameter already exists")

// SSMManager reads and writes the ledger's parameters under
// /{env}/matchpass/.
type SSMManager struct {
	client SSMClient
	root   string
	logger *slog.Logger
}

func NewSSMManager(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, root: path.Join("/", env, "matchpass"), logger: logger}
}

// SSMPath maps "database/url" to "/{env}/matchpass/database/url". The
// services find it through DATABASE_URL_SSM_PARAM and its siblings.
func (m *SSMManager) SSMPath(key string) string {
	return path.Join(m.root, key)
}

// ParameterExists reads without decryption so the caller needs no
// kms:Decrypt grant.
func (m *SSMManager) ParameterExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ssmCallTimeout)
	defer cancel()

	_, err := m.client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(name), WithDecryption: aws.Bool(false)})
	var notFound *ssmtypes.ParameterNotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("get %s: %w", name, err)
	}
}

// PutSecret stores a SecureString. The value never reaches the log.
func (m *SSMManager) PutSecret(ctx context.Context, name, value string, overwrite bool) error {
	if err := m.put(ctx, name, value, ssmtypes.ParameterTypeSecureString, overwrite); err != nil {
		return err
	}
	m.logger.Info("secret stored", "path", name, "length", len(value))
	return nil
}

// PutString stores a plain String, replacing any previous value.
func (m *SSMManager) PutString(ctx context.Context, name, value string) error {
	if err := m.put(ctx, name, value, ssmtypes.ParameterTypeString, true); err != nil {
		return err
	}
	m.logger.Info("parameter stored", "path", name, "value", value)
	return nil
}

func (m *SSMManager) put(ctx context.Context, name, value string, typ ssmtypes.ParameterType, overwrite bool) error {
	switch {
	case name == "":
		return errors.New("parameter path is empty")
	case value == "":
		return fmt.Errorf("refusing to store an empty value at %s", name)
	}

	ctx, cancel := context.WithTimeout(ctx, ssmCallTimeout)
	defer cancel()

	_, err := m.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(value),
		Type:        typ,
		Overwrite:   aws.Bool(overwrite),
		Description: aws.String("matchpass ledger; written by bootstrap"),
	})
	var exists *ssmtypes.ParameterAlreadyExists
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exists):
		return fmt.Errorf("put %s: %w", name, ErrParameterExists)
	default:
		return fmt.Errorf("put %s: %w", name, err)
	}
}
