// Package secrets backs the secret store on AWS SSM Parameter Store.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"opsbrain/application/ports"
	apperrors "opsbrain/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"go.uber.org/zap"
)

// SSMStore implements ports.SecretStore with SSM parameters
type SSMStore struct {
	client *ssm.Client
	logger *zap.Logger
}

// NewSSMStore creates a new SSMStore
func NewSSMStore(client *ssm.Client, logger *zap.Logger) ports.SecretStore {
	return &SSMStore{
		client: client,
		logger: logger,
	}
}

// Get returns the decrypted parameter value at the key path
func (s *SSMStore) Get(ctx context.Context, keyPath string) (string, error) {
	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(keyPath),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", apperrors.NewNotFoundError(fmt.Sprintf("parameter %s not found", keyPath))
		}
		return "", apperrors.NewExternalError("ssm", err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("parameter %s has no value", keyPath))
	}

	return aws.ToString(result.Parameter.Value), nil
}
