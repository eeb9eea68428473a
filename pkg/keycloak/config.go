package keycloak

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

const defaultScope = "openid"

// Credentials holds the confidential client secret
type Credentials struct {
	Secret string `json:"secret"`
}

// ProviderConfig is the Keycloak OIDC adapter configuration as exported from
// the realm's client "Installation" tab, with optional explicit endpoints.
type ProviderConfig struct {
	Realm               string      `json:"realm"`
	AuthServerURL       string      `json:"auth-server-url"`
	Resource            string      `json:"resource"` // client id
	Credentials         Credentials `json:"credentials"`
	PublicClient        bool        `json:"public-client"`
	SSLRequired         string      `json:"ssl-required,omitempty"`
	DisableTrustManager bool        `json:"disable-trust-manager,omitempty"`
	ConnectionPoolSize  int         `json:"connection-pool-size,omitempty"`
	SocketTimeoutMillis int64       `json:"socket-timeout-millis,omitempty"`

	AuthorizationEndpoint string   `json:"authorization-endpoint,omitempty"`
	TokenEndpoint         string   `json:"token-endpoint,omitempty"`
	JWKSURI               string   `json:"jwks-uri,omitempty"`
	Issuer                string   `json:"issuer,omitempty"`
	Scopes                []string `json:"scopes,omitempty"`
	UseDiscovery          bool     `json:"use-discovery,omitempty"`

	fingerprint string
}

// ParseProviderConfig parses adapter JSON and fills in the realm endpoints
func ParseProviderConfig(jsonText string) (*ProviderConfig, error) {
	if strings.TrimSpace(jsonText) == "" {
		return nil, &ConfigError{Reason: "configuration is empty"}
	}

	var cfg ProviderConfig
	if err := json.Unmarshal([]byte(jsonText), &cfg); err != nil {
		return nil, &ConfigError{Reason: "configuration is not valid JSON", Err: err}
	}

	cfg.Resource = strings.TrimSpace(cfg.Resource)
	if cfg.Resource == "" {
		return nil, &ConfigError{Reason: "resource (client id) is required"}
	}

	if realmURL := cfg.RealmURL(); realmURL != "" {
		if cfg.AuthorizationEndpoint == "" {
			cfg.AuthorizationEndpoint = realmURL + "/protocol/openid-connect/auth"
		}
		if cfg.TokenEndpoint == "" {
			cfg.TokenEndpoint = realmURL + "/protocol/openid-connect/token"
		}
		if cfg.JWKSURI == "" {
			cfg.JWKSURI = realmURL + "/protocol/openid-connect/certs"
		}
		if cfg.Issuer == "" {
			cfg.Issuer = realmURL
		}
	}

	if cfg.AuthorizationEndpoint == "" {
		return nil, &ConfigError{Reason: "authorization endpoint is required (set auth-server-url and realm)"}
	}
	if cfg.TokenEndpoint == "" {
		return nil, &ConfigError{Reason: "token endpoint is required (set auth-server-url and realm)"}
	}
	if cfg.UseDiscovery && cfg.Issuer == "" {
		return nil, &ConfigError{Reason: "use-discovery requires an issuer or auth-server-url and realm"}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{defaultScope}
	}

	sum := sha256.Sum256([]byte(jsonText))
	cfg.fingerprint = hex.EncodeToString(sum[:])

	return &cfg, nil
}

// RealmURL returns <auth-server-url>/realms/<realm>, or "" when either part is missing
func (c *ProviderConfig) RealmURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.AuthServerURL), "/")
	realm := strings.TrimSpace(c.Realm)
	if base == "" || realm == "" {
		return ""
	}
	return base + "/realms/" + url.PathEscape(realm)
}

// ClientID returns the OAuth2 client identifier
func (c *ProviderConfig) ClientID() string {
	return c.Resource
}

// Fingerprint identifies the configuration text the value was parsed from
func (c *ProviderConfig) Fingerprint() string {
	return c.fingerprint
}
