// Package paramstore reads deployment secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
)

// ssmAPI is the part of *ssm.Client the store calls.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter fetches one decrypted parameter value by name.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads SecureString and String parameters.
type Client struct {
	api ssmAPI
}

// New creates a Client over api.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// NewFromConfig builds an SSM-backed Client in the storage region using the
// default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("paramstore: loading aws config: %w", err)
	}
	return New(ssm.NewFromConfig(awsCfg))
}

// GetParameter returns the decrypted value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// NeedsResolve reports whether any secret in cfg is sourced from SSM.
func NeedsResolve(cfg *config.Config) bool {
	return cfg.Auth.TokenParameter != "" || cfg.Relay.TokenParameter != ""
}

// ResolveSecrets replaces the inbound bearer token and the relay token with
// the values of their configured parameters. Inline values are kept when no
// parameter is named.
func ResolveSecrets(ctx context.Context, g Getter, cfg *config.Config) error {
	if cfg.Auth.TokenParameter != "" {
		v, err := g.GetParameter(ctx, cfg.Auth.TokenParameter)
		if err != nil {
			return fmt.Errorf("resolving auth token: %w", err)
		}
		cfg.Auth.Token = strings.TrimSpace(v)
	}
	if cfg.Relay.TokenParameter != "" {
		v, err := g.GetParameter(ctx, cfg.Relay.TokenParameter)
		if err != nil {
			return fmt.Errorf("resolving relay token: %w", err)
		}
		cfg.Relay.Token = strings.TrimSpace(v)
	}
	return nil
}
