package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type fakeSecretsClient struct {
	values map[string]*secretsmanager.GetSecretValueOutput
	calls  []string
	err    error
}

func (f *fakeSecretsClient) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	key := ""
	if params.SecretId != nil {
		key = *params.SecretId
	}
	f.calls = append(f.calls, key)
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.values[key]
	if !ok {
		return nil, errors.New("ResourceNotFoundException: Secrets Manager can't find the specified secret")
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func TestResolveWith(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := &fakeSecretsClient{values: map[string]*secretsmanager.GetSecretValueOutput{
		"relay/sponsor": {SecretString: strPtr("suiprivkey1abc\n")},
	}}
	aws, err := NewAWSWithClient(client)
	if err != nil {
		t.Fatalf("NewAWSWithClient: %v", err)
	}

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr error
	}{
		{name: "literal passes through untouched", ref: "word word word", want: "word word word"},
		{name: "literal with surrounding space", ref: "  0xdeadbeef  ", want: "0xdeadbeef"},
		{name: "aws ref resolves and trims", ref: "aws-secrets://relay/sponsor", want: "suiprivkey1abc"},
		{name: "empty ref", ref: "", wantErr: ErrInvalidConfig},
		{name: "empty aws id", ref: "aws-secrets://  ", wantErr: ErrInvalidConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWith(ctx, tc.ref, aws)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ResolveWith(%q): got err %v want %v", tc.ref, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWith(%q): %v", tc.ref, err)
			}
			if got != tc.want {
				t.Fatalf("ResolveWith(%q): got %q want %q", tc.ref, got, tc.want)
			}
		})
	}

	// Only the aws-scheme refs touched the client.
	if len(client.calls) != 1 || client.calls[0] != "relay/sponsor" {
		t.Fatalf("client calls: %v", client.calls)
	}

	// Provider failures name the ref, never the secret.
	if _, err := ResolveWith(ctx, "aws-secrets://relay/missing", aws); err == nil {
		t.Fatalf("expected error for missing secret")
	} else if !strings.Contains(err.Error(), "aws-secrets://relay/missing") {
		t.Fatalf("error must carry the ref: %q", err.Error())
	}

	if _, err := ResolveWith(ctx, "aws-secrets://relay/sponsor", nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil provider: got %v", err)
	}
	// A literal ref never needs the provider.
	if got, err := ResolveWith(ctx, "literal-secret", nil); err != nil || got != "literal-secret" {
		t.Fatalf("literal with nil provider: %q %v", got, err)
	}
}

func TestAWSProviderGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name    string
		out     *secretsmanager.GetSecretValueOutput
		want    string
		wantErr error
	}{
		{
			name: "string value trimmed",
			out:  &secretsmanager.GetSecretValueOutput{SecretString: strPtr("  secret-value \n")},
			want: "secret-value",
		},
		{
			name: "binary fallback",
			out:  &secretsmanager.GetSecretValueOutput{SecretBinary: []byte("binary-secret\n")},
			want: "binary-secret",
		},
		{
			name:    "blank string and no binary",
			out:     &secretsmanager.GetSecretValueOutput{SecretString: strPtr("   ")},
			wantErr: ErrNotFound,
		},
		{
			name:    "empty output",
			out:     &secretsmanager.GetSecretValueOutput{},
			wantErr: ErrNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewAWSWithClient(&fakeSecretsClient{
				values: map[string]*secretsmanager.GetSecretValueOutput{"k": tc.out},
			})
			if err != nil {
				t.Fatalf("NewAWSWithClient: %v", err)
			}
			got, err := p.Get(ctx, "k")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Get: got err %v want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Get: got %q want %q", got, tc.want)
			}
		})
	}

	p, _ := NewAWSWithClient(&fakeSecretsClient{})
	if _, err := p.Get(ctx, "  "); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("blank key: got %v", err)
	}
	if _, err := NewAWSWithClient(nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil client: got %v", err)
	}
}

func TestEnvProviderGet(t *testing.T) {
	t.Setenv("RELAY_TEST_SECRET", "  env-secret \n")

	p := NewEnv()
	got, err := p.Get(context.Background(), "RELAY_TEST_SECRET")
	if err != nil || got != "env-secret" {
		t.Fatalf("Get: %q %v", got, err)
	}

	if _, err := p.Get(context.Background(), "RELAY_TEST_SECRET_MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing env: got %v", err)
	}
	if _, err := p.Get(context.Background(), ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("empty key: got %v", err)
	}
}
