package keycloak

import (
	"context"

	"github.com/sirupsen/logrus"
)

const (
	// ProviderKey identifies the provider to the host and suffixes unique logins
	ProviderKey  = "keycloak"
	providerName = "Keycloak"
)

// Display controls how the host renders the login button
type Display struct {
	IconPath        string `json:"icon_path"`
	BackgroundColor string `json:"background_color"`
}

// IdentityProvider is the capability object the host registers
type IdentityProvider struct {
	settings *SettingsReader
	flow     *AuthFlowController
}

// Option customizes the provider built by NewIdentityProvider
type Option func(*providerOptions)

type providerOptions struct {
	log     *logrus.Logger
	metrics MetricsRecorder
	build   BuildFunc
}

// WithLogger sets the logger shared by every component
func WithLogger(log *logrus.Logger) Option {
	return func(o *providerOptions) { o.log = log }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(o *providerOptions) { o.metrics = m }
}

// WithBuildFunc replaces how deployments are constructed
func WithBuildFunc(build BuildFunc) Option {
	return func(o *providerOptions) { o.build = build }
}

// NewIdentityProvider wires settings, deployment cache, mapper and flow
func NewIdentityProvider(source SettingsSource, opts ...Option) *IdentityProvider {
	o := &providerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logrus.New()
	}

	settings := NewSettingsReader(source)
	deployments := NewDeploymentClient(o.build, o.log, o.metrics)
	mapper := NewIdentityMapper(o.log)

	return &IdentityProvider{
		settings: settings,
		flow:     NewAuthFlowController(settings, deployments, mapper, o.log, o.metrics),
	}
}

func (p *IdentityProvider) Key() string  { return ProviderKey }
func (p *IdentityProvider) Name() string { return providerName }

// Display returns the login button appearance
func (p *IdentityProvider) Display() Display {
	return Display{
		IconPath:        "/static/authkeycloak/keycloak.svg",
		BackgroundColor: "#444444",
	}
}

func (p *IdentityProvider) IsEnabled() bool           { return p.settings.IsEnabled() }
func (p *IdentityProvider) AllowsUsersToSignUp() bool { return p.settings.AllowUsersToSignUp() }

// Settings exposes the settings accessor
func (p *IdentityProvider) Settings() *SettingsReader { return p.settings }

// Mapper exposes the identity factory
func (p *IdentityProvider) Mapper() *IdentityMapper { return p.flow.mapper }

// Deployments exposes the deployment cache, e.g. to invalidate it after a config change
func (p *IdentityProvider) Deployments() *DeploymentClient { return p.flow.deployments }

// Init starts a login
func (p *IdentityProvider) Init(ctx context.Context, ic InitContext) error {
	return p.flow.Initiate(ctx, ic)
}

// Callback completes a login
func (p *IdentityProvider) Callback(ctx context.Context, cc CallbackContext) error {
	return p.flow.Callback(ctx, cc)
}

// CheckConfig parses the current configuration; used by readiness probes
func (p *IdentityProvider) CheckConfig() error {
	settings := p.settings.Snapshot()
	if !settings.IsEnabled() {
		return nil
	}
	_, err := ParseProviderConfig(settings.ConfigJSON)
	return err
}
