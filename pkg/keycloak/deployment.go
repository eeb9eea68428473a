package keycloak

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultSocketTimeout = 10 * time.Second

var (
	errDeploymentClosed = errors.New("deployment network client is closed")
	errMissingIDToken   = errors.New("token response carries no id_token")
)

// BuildFunc constructs a Deployment from a parsed configuration
type BuildFunc func(ctx context.Context, cfg *ProviderConfig) (*Deployment, error)

// Deployment is a ready-to-use client descriptor for one Keycloak client
type Deployment struct {
	config     *ProviderConfig
	oauth2     oauth2.Config
	httpClient *http.Client
	transport  *http.Transport
	verifier   *oidc.IDTokenVerifier
	closed     atomic.Bool
}

// NewDeployment builds a deployment with its own HTTP client. With
// use-discovery set the realm's discovery document is fetched here.
func NewDeployment(ctx context.Context, cfg *ProviderConfig) (*Deployment, error) {
	if cfg == nil {
		return nil, errors.New("provider config is required")
	}
	if err := requireAbsoluteURL("authorization endpoint", cfg.AuthorizationEndpoint); err != nil {
		return nil, err
	}
	if err := requireAbsoluteURL("token endpoint", cfg.TokenEndpoint); err != nil {
		return nil, err
	}
	if cfg.JWKSURI != "" {
		if err := requireAbsoluteURL("jwks uri", cfg.JWKSURI); err != nil {
			return nil, err
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.DisableTrustManager {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in adapter setting
	}
	if cfg.ConnectionPoolSize > 0 {
		transport.MaxIdleConnsPerHost = cfg.ConnectionPoolSize
		transport.MaxConnsPerHost = cfg.ConnectionPoolSize
	}
	timeout := defaultSocketTimeout
	if cfg.SocketTimeoutMillis > 0 {
		timeout = time.Duration(cfg.SocketTimeoutMillis) * time.Millisecond
	}
	client := &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}

	authStyle := oauth2.AuthStyleInHeader
	if cfg.PublicClient {
		authStyle = oauth2.AuthStyleInParams
	}

	d := &Deployment{
		config: cfg,
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID(),
			ClientSecret: cfg.Credentials.Secret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: authStyle,
			},
			Scopes: cfg.Scopes,
		},
		httpClient: client,
		transport:  transport,
	}
	if cfg.PublicClient {
		d.oauth2.ClientSecret = ""
	}

	verifierConfig := &oidc.Config{
		ClientID:        cfg.ClientID(),
		SkipIssuerCheck: cfg.Issuer == "",
	}

	// Key fetches outlive the request that triggered the build.
	keyCtx := oidc.ClientContext(context.Background(), client)

	switch {
	case cfg.UseDiscovery:
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
		}
		endpoint := provider.Endpoint()
		endpoint.AuthStyle = authStyle
		d.oauth2.Endpoint = endpoint
		d.verifier = provider.Verifier(verifierConfig)
	case cfg.JWKSURI != "":
		d.verifier = oidc.NewVerifier(cfg.Issuer, oidc.NewRemoteKeySet(keyCtx, cfg.JWKSURI), verifierConfig)
	}

	return d, nil
}

func requireAbsoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
	}
	return nil
}

// Config returns the configuration the deployment was built from
func (d *Deployment) Config() *ProviderConfig {
	return d.config
}

// Usable reports whether the network client is still open
func (d *Deployment) Usable() bool {
	return !d.closed.Load()
}

// Close tears down the network client. A closed deployment is rebuilt by the
// DeploymentClient on next use.
func (d *Deployment) Close() {
	if d.closed.CompareAndSwap(false, true) && d.transport != nil {
		d.transport.CloseIdleConnections()
	}
}

// VerifiesSignatures reports whether ID tokens are checked against the realm keys
func (d *Deployment) VerifiesSignatures() bool {
	return d.verifier != nil
}

func (d *Deployment) configFor(redirectURI string) *oauth2.Config {
	cfg := d.oauth2
	cfg.RedirectURL = redirectURI
	return &cfg
}

// AuthCodeURL builds the authorization endpoint URL for one login attempt
func (d *Deployment) AuthCodeURL(redirectURI, state string) string {
	return d.configFor(redirectURI).AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and returns the raw ID token
func (d *Deployment) Exchange(ctx context.Context, code, redirectURI string) (string, error) {
	if !d.Usable() {
		return "", errDeploymentClosed
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)
	token, err := d.configFor(redirectURI).Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", errMissingIDToken
	}
	return rawIDToken, nil
}

// DecodeIDToken verifies (when keys are available) and decodes an ID token
func (d *Deployment) DecodeIDToken(ctx context.Context, rawIDToken string) (IdentityClaims, error) {
	var raw map[string]any

	if d.verifier != nil {
		idToken, err := d.verifier.Verify(oidc.ClientContext(ctx, d.httpClient), rawIDToken)
		if err != nil {
			return IdentityClaims{}, fmt.Errorf("failed to verify ID token: %w", err)
		}
		if err := idToken.Claims(&raw); err != nil {
			return IdentityClaims{}, fmt.Errorf("failed to parse claims: %w", err)
		}
		return ClaimsFromMap(raw), nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
		return IdentityClaims{}, fmt.Errorf("failed to decode ID token: %w", err)
	}
	raw = claims
	return ClaimsFromMap(raw), nil
}

// DeploymentClient caches one Deployment for the life of the process
type DeploymentClient struct {
	build   BuildFunc
	slot    atomic.Pointer[Deployment]
	group   singleflight.Group
	log     *logrus.Logger
	metrics MetricsRecorder
}

// NewDeploymentClient creates a deployment cache. A nil build uses NewDeployment.
func NewDeploymentClient(build BuildFunc, log *logrus.Logger, metrics MetricsRecorder) *DeploymentClient {
	if build == nil {
		build = NewDeployment
	}
	if log == nil {
		log = logrus.New()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DeploymentClient{
		build:   build,
		log:     log,
		metrics: metrics,
	}
}

func (c *DeploymentClient) current(cfg *ProviderConfig) *Deployment {
	d := c.slot.Load()
	if d == nil || !d.Usable() || d.config.Fingerprint() != cfg.Fingerprint() {
		return nil
	}
	return d
}

// GetOrBuild returns the cached deployment for cfg, building it when missing,
// closed or built from different configuration. Concurrent callers share one build.
func (c *DeploymentClient) GetOrBuild(ctx context.Context, cfg *ProviderConfig) (*Deployment, error) {
	if cfg == nil {
		return nil, &BuildError{Err: errors.New("provider config is required")}
	}
	if d := c.current(cfg); d != nil {
		return d, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(cfg.Fingerprint(), func() (any, error) {
		if d := c.current(cfg); d != nil {
			return d, nil
		}

		d, err := c.build(buildCtx, cfg)
		c.metrics.DeploymentBuilt(err)
		if err != nil {
			c.log.WithError(err).Warn("Failed to build Keycloak deployment")
			return nil, &BuildError{Err: err}
		}

		if old := c.slot.Swap(d); old != nil && old != d {
			old.Close()
		}
		c.log.WithFields(logrus.Fields{
			"client_id":       cfg.ClientID(),
			"token_endpoint":  d.oauth2.Endpoint.TokenURL,
			"verifies_tokens": d.VerifiesSignatures(),
		}).Info("Keycloak deployment built")
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Deployment), nil
}

// Invalidate closes and forgets the cached deployment
func (c *DeploymentClient) Invalidate() {
	if old := c.slot.Swap(nil); old != nil {
		old.Close()
	}
}
