package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	ErrInvalidConfig = errors.New("secrets: invalid config")
	ErrNotFound      = errors.New("secrets: not found")
)

// AWSRefPrefix marks a sponsor-secret reference that resolves through AWS
// Secrets Manager instead of being used literally.
const AWSRefPrefix = "aws-secrets://"

// Provider resolves secret material by key.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// Resolve turns a configured secret reference into secret material:
// "aws-secrets://<id>" is fetched from Secrets Manager, anything else is the
// literal value. The sponsor key loader consumes the result either way.
func Resolve(ctx context.Context, ref string) (string, error) {
	return resolve(ctx, ref, func() (Provider, error) { return NewAWS(ctx) })
}

// ResolveWith is Resolve with an explicit provider for the aws-secrets
// scheme, for tests and callers that manage their own client.
func ResolveWith(ctx context.Context, ref string, aws Provider) (string, error) {
	return resolve(ctx, ref, func() (Provider, error) {
		if aws == nil {
			return nil, fmt.Errorf("%w: nil provider", ErrInvalidConfig)
		}
		return aws, nil
	})
}

func resolve(ctx context.Context, ref string, provider func() (Provider, error)) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty secret reference", ErrInvalidConfig)
	}

	id, ok := strings.CutPrefix(ref, AWSRefPrefix)
	if !ok {
		return ref, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty aws secret id", ErrInvalidConfig)
	}

	p, err := provider()
	if err != nil {
		return "", err
	}
	v, err := p.Get(ctx, id)
	if err != nil {
		// The ref (not the resolved value) is safe to echo.
		return "", fmt.Errorf("secrets: resolve %s%s: %w", AWSRefPrefix, id, err)
	}
	return v, nil
}

type awsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads secrets from AWS Secrets Manager.
type AWSProvider struct {
	client awsClient
}

func NewAWS(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrInvalidConfig, err)
	}
	return NewAWSWithClient(secretsmanager.NewFromConfig(cfg))
}

func NewAWSWithClient(client awsClient) (*AWSProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil secretsmanager client", ErrInvalidConfig)
	}
	return &AWSProvider{client: client}, nil
}

func (p *AWSProvider) Get(ctx context.Context, key string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("%w: nil aws provider", ErrInvalidConfig)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty secret key", ErrInvalidConfig)
	}

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get secret %q: %w", key, err)
	}
	return secretPayload(key, out)
}

// secretPayload prefers the string form; key material pasted into the
// console often carries trailing newlines, so both forms are trimmed.
func secretPayload(key string, out *secretsmanager.GetSecretValueOutput) (string, error) {
	if out.SecretString != nil {
		if v := strings.TrimSpace(*out.SecretString); v != "" {
			return v, nil
		}
	}
	if len(out.SecretBinary) > 0 {
		if v := strings.TrimSpace(string(out.SecretBinary)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: secret %q has no value", ErrNotFound, key)
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

func NewEnv() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty env key", ErrInvalidConfig)
	}
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%w: env %s is empty", ErrNotFound, key)
	}
	return v, nil
}
