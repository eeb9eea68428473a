package keycloak

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/platinummonkey/keycloak-auth/pkg/keycloak"

// AttemptState is the position of one login attempt in the flow
type AttemptState int

const (
	StateIdle AttemptState = iota
	StateAwaitingCallback
	StateCompleted
	StateFailed
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InitContext is provided by the host when a user starts a login
type InitContext interface {
	// CallbackURL is the absolute URL Keycloak redirects back to
	CallbackURL() string
	// StoreState remembers the state token so the callback can verify it
	StoreState(ctx context.Context, state string) error
	RedirectTo(url string)
}

// CallbackContext is provided by the host when Keycloak redirects back
type CallbackContext interface {
	Request() *http.Request
	CallbackURL() string
	// VerifyState must fail unless state was issued to this browser and not used yet
	VerifyState(ctx context.Context, state string) error
	Authenticate(ctx context.Context, identity *UserIdentity, allowSignUp bool) error
	RedirectToRequestedPage()
}

// MetricsRecorder receives flow events; observability.Metrics implements it
type MetricsRecorder interface {
	LoginInitiated()
	CallbackFinished(state AttemptState, kind ErrorKind, duration time.Duration)
	TokenExchanged(duration time.Duration, err error)
	DeploymentBuilt(err error)
}

type nopMetrics struct{}

func (nopMetrics) LoginInitiated()                                        {}
func (nopMetrics) CallbackFinished(AttemptState, ErrorKind, time.Duration) {}
func (nopMetrics) TokenExchanged(time.Duration, error)                     {}
func (nopMetrics) DeploymentBuilt(error)                                   {}

// AuthFlowController drives the authorization-code flow
type AuthFlowController struct {
	settings    *SettingsReader
	deployments *DeploymentClient
	mapper      *IdentityMapper
	log         *logrus.Logger
	metrics     MetricsRecorder
	tracer      trace.Tracer
	newState    func() string
}

// NewAuthFlowController wires the flow
func NewAuthFlowController(settings *SettingsReader, deployments *DeploymentClient, mapper *IdentityMapper, log *logrus.Logger, metrics MetricsRecorder) *AuthFlowController {
	if log == nil {
		log = logrus.New()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AuthFlowController{
		settings:    settings,
		deployments: deployments,
		mapper:      mapper,
		log:         log,
		metrics:     metrics,
		tracer:      otel.Tracer(tracerName),
		newState:    uuid.NewString,
	}
}

func (c *AuthFlowController) deployment(ctx context.Context, settings AuthSettings) (*Deployment, error) {
	cfg, err := ParseProviderConfig(settings.ConfigJSON)
	if err != nil {
		return nil, err
	}
	return c.deployments.GetOrBuild(ctx, cfg)
}

// Initiate starts a login attempt and redirects the user to Keycloak
func (c *AuthFlowController) Initiate(ctx context.Context, ic InitContext) error {
	ctx, span := c.tracer.Start(ctx, "keycloak.Initiate")
	defer span.End()

	settings := c.settings.Snapshot()
	if !settings.IsEnabled() {
		span.SetStatus(codes.Error, ErrProviderDisabled.Error())
		return ErrProviderDisabled
	}

	deployment, err := c.deployment(ctx, settings)
	if err != nil {
		c.logFailure(err, StateIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "initiate failed")
		return err
	}

	state := c.newState()
	if err := ic.StoreState(ctx, state); err != nil {
		c.log.WithError(err).WithField("state", StateIdle.String()).Error("Failed to store login state")
		span.RecordError(err)
		span.SetStatus(codes.Error, "store state failed")
		return err
	}

	ic.RedirectTo(deployment.AuthCodeURL(ic.CallbackURL(), state))
	c.metrics.LoginInitiated()
	c.log.WithField("state", StateAwaitingCallback.String()).Debug("Redirecting to Keycloak")
	return nil
}

// Callback completes a login attempt. Every error ends the attempt; none is retried.
func (c *AuthFlowController) Callback(ctx context.Context, cc CallbackContext) error {
	ctx, span := c.tracer.Start(ctx, "keycloak.Callback")
	defer span.End()

	start := time.Now()
	identity, err := c.callback(ctx, cc)
	if err != nil {
		kind, _ := KindOf(err)
		c.metrics.CallbackFinished(StateFailed, kind, time.Since(start))
		c.logFailure(err, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "callback failed")
		return err
	}

	c.metrics.CallbackFinished(StateCompleted, 0, time.Since(start))
	span.SetAttributes(attribute.String("keycloak.login", identity.Login))
	c.log.WithFields(logrus.Fields{
		"login":  identity.Login,
		"groups": len(identity.Groups),
		"state":  StateCompleted.String(),
	}).Info("Keycloak login completed")

	cc.RedirectToRequestedPage()
	return nil
}

func (c *AuthFlowController) callback(ctx context.Context, cc CallbackContext) (*UserIdentity, error) {
	settings := c.settings.Snapshot()
	if !settings.IsEnabled() {
		return nil, &CallbackError{Reason: "provider is disabled", Err: ErrProviderDisabled}
	}

	query := cc.Request().URL.Query()
	state := query.Get("state")
	if providerErr := query.Get("error"); providerErr != "" {
		// Spend the state so it cannot be redeemed later.
		if state != "" {
			if err := cc.VerifyState(ctx, state); err != nil {
				c.log.WithError(err).Debug("Provider error carried an unverified state")
			}
		}
		return nil, &CallbackError{Reason: "provider returned " + providerErr + ": " + query.Get("error_description")}
	}

	if state == "" {
		return nil, &CallbackError{Reason: "missing state parameter"}
	}
	if err := cc.VerifyState(ctx, state); err != nil {
		return nil, &CallbackError{Reason: "state verification failed", Err: err}
	}

	code := query.Get("code")
	if code == "" {
		return nil, &CallbackError{Reason: "missing authorization code"}
	}

	deployment, err := c.deployment(ctx, settings)
	if err != nil {
		return nil, err
	}

	exchangeStart := time.Now()
	rawIDToken, err := deployment.Exchange(ctx, code, cc.CallbackURL())
	c.metrics.TokenExchanged(time.Since(exchangeStart), err)
	if err != nil {
		return nil, &CallbackError{Reason: "token exchange failed", Err: err}
	}

	claims, err := deployment.DecodeIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, &CallbackError{Reason: "malformed ID token", Err: err}
	}

	identity, err := c.mapper.Map(claims, settings)
	if err != nil {
		return nil, err
	}

	if err := cc.Authenticate(ctx, identity, settings.AllowUsersToSignUp); err != nil {
		return nil, &CallbackError{Reason: "host rejected identity", Err: err}
	}
	return identity, nil
}

func (c *AuthFlowController) logFailure(err error, state AttemptState) {
	entry := c.log.WithError(err).WithField("state", state.String())
	kind, ok := KindOf(err)
	if ok {
		entry = entry.WithField("kind", kind.String())
	}
	if ok && kind.Fatal() {
		entry.Error("Keycloak provider is misconfigured")
		return
	}
	entry.Warn("Keycloak login attempt failed")
}
