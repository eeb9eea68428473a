package keycloak

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adapterJSON = `{
  "realm": "acme",
  "auth-server-url": "https://sso.example.com/",
  "ssl-required": "external",
  "resource": "my-app",
  "credentials": {"secret": "s3cr3t"},
  "confidential-port": 0
}`

func TestParseProviderConfig(t *testing.T) {
	cfg, err := ParseProviderConfig(adapterJSON)
	require.NoError(t, err)

	assert.Equal(t, "my-app", cfg.ClientID())
	assert.Equal(t, "s3cr3t", cfg.Credentials.Secret)
	assert.Equal(t, "https://sso.example.com/realms/acme", cfg.RealmURL())
	assert.Equal(t, "https://sso.example.com/realms/acme/protocol/openid-connect/auth", cfg.AuthorizationEndpoint)
	assert.Equal(t, "https://sso.example.com/realms/acme/protocol/openid-connect/token", cfg.TokenEndpoint)
	assert.Equal(t, "https://sso.example.com/realms/acme/protocol/openid-connect/certs", cfg.JWKSURI)
	assert.Equal(t, "https://sso.example.com/realms/acme", cfg.Issuer)
	assert.Equal(t, []string{"openid"}, cfg.Scopes)
	assert.Len(t, cfg.Fingerprint(), 64)
}

func TestParseProviderConfig_ExplicitEndpoints(t *testing.T) {
	cfg, err := ParseProviderConfig(`{
		"resource": "app",
		"public-client": true,
		"authorization-endpoint": "https://idp.example.com/authorize",
		"token-endpoint": "https://idp.example.com/token",
		"scopes": ["openid", "profile"]
	}`)
	require.NoError(t, err)

	assert.True(t, cfg.PublicClient)
	assert.Empty(t, cfg.RealmURL())
	assert.Empty(t, cfg.JWKSURI)
	assert.Equal(t, "https://idp.example.com/authorize", cfg.AuthorizationEndpoint)
	assert.Equal(t, []string{"openid", "profile"}, cfg.Scopes)
}

func TestParseProviderConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		errorMsg string
	}{
		{
			name:     "empty",
			json:     "  \n",
			errorMsg: "configuration is empty",
		},
		{
			name:     "not json",
			json:     "{realm: acme",
			errorMsg: "configuration is not valid JSON",
		},
		{
			name:     "missing resource",
			json:     `{"realm": "acme", "auth-server-url": "https://sso.example.com"}`,
			errorMsg: "resource (client id) is required",
		},
		{
			name:     "missing realm",
			json:     `{"auth-server-url": "https://sso.example.com", "resource": "app"}`,
			errorMsg: "authorization endpoint is required",
		},
		{
			name:     "missing token endpoint",
			json:     `{"resource": "app", "authorization-endpoint": "https://idp/authorize"}`,
			errorMsg: "token endpoint is required",
		},
		{
			name: "discovery without issuer",
			json: `{"resource": "app", "use-discovery": true,
				"authorization-endpoint": "https://idp/authorize", "token-endpoint": "https://idp/token"}`,
			errorMsg: "use-discovery requires an issuer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseProviderConfig(tt.json)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errorMsg)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
			kind, ok := KindOf(err)
			assert.True(t, ok)
			assert.Equal(t, KindConfig, kind)
			assert.True(t, kind.Fatal())
		})
	}
}

func TestParseProviderConfig_FingerprintTracksText(t *testing.T) {
	a, err := ParseProviderConfig(adapterJSON)
	require.NoError(t, err)
	b, err := ParseProviderConfig(adapterJSON)
	require.NoError(t, err)
	c, err := ParseProviderConfig(`{"realm": "other", "auth-server-url": "https://sso.example.com", "resource": "my-app"}`)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
