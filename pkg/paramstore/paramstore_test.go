package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
)

type fakeAPI struct {
	values map[string]string
	err    error
	calls  []string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, *in.Name)
	if f.err != nil {
		return nil, f.err
	}
	if in.WithDecryption == nil || !*in.WithDecryption {
		return nil, errors.New("decryption not requested")
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name}}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: in.Name, Value: &v}}, nil
}

func TestGetParameter(t *testing.T) {
	client, err := New(&fakeAPI{values: map[string]string{"/hackrx/token": "s3cret"}})
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /hackrx/token ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)

	_, err = client.GetParameter(context.Background(), "/hackrx/missing")
	require.ErrorContains(t, err, "has no value")

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestGetParameter_APIError(t *testing.T) {
	client, err := New(&fakeAPI{err: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "AccessDenied")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolveSecrets(t *testing.T) {
	api := &fakeAPI{values: map[string]string{
		"/hackrx/auth":  "inbound\n",
		"/hackrx/relay": "downstream",
	}}
	client, err := New(api)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.Token = "inline"
	cfg.Auth.TokenParameter = "/hackrx/auth"
	cfg.Relay.TokenParameter = "/hackrx/relay"
	require.True(t, NeedsResolve(cfg))

	require.NoError(t, ResolveSecrets(context.Background(), client, cfg))
	require.Equal(t, "inbound", cfg.Auth.Token)
	require.Equal(t, "downstream", cfg.Relay.Token)
}

func TestResolveSecrets_KeepsInlineWithoutParameters(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.Token = "inline"
	require.False(t, NeedsResolve(cfg))
	require.NoError(t, ResolveSecrets(context.Background(), client, cfg))
	require.Equal(t, "inline", cfg.Auth.Token)
	require.Empty(t, api.calls)
}

func TestResolveSecrets_PropagatesError(t *testing.T) {
	client, err := New(&fakeAPI{err: errors.New("throttled")})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Relay.TokenParameter = "/hackrx/relay"
	err = ResolveSecrets(context.Background(), client, cfg)
	require.ErrorContains(t, err, "relay token")
	require.ErrorContains(t, err, "throttled")
}
