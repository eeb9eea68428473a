package keycloak

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/keycloak-auth/pkg/httputil"
)

const (
	loginPath       = "/auth/keycloak/login"
	callbackPath    = "/auth/keycloak/callback"
	stateCookieName = "keycloak_state"
)

// Authenticator establishes the host session for a mapped identity
type Authenticator interface {
	Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *UserIdentity, allowSignUp bool) error
}

// Handlers exposes the login flow over HTTP
type Handlers struct {
	provider      *IdentityProvider
	states        StateStore
	authenticator Authenticator
	baseURL       string
	secureCookies bool
	log           *logrus.Logger
}

// NewHandlers creates the HTTP adapter. baseURL is the externally visible
// root of the host, used to build the callback URL.
func NewHandlers(provider *IdentityProvider, states StateStore, authenticator Authenticator, baseURL string, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.New()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Handlers{
		provider:      provider,
		states:        states,
		authenticator: authenticator,
		baseURL:       baseURL,
		secureCookies: strings.HasPrefix(baseURL, "https://"),
		log:           log,
	}
}

// RegisterRoutes registers the login routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(loginPath, h.initiateLogin).Methods("GET")
	router.HandleFunc(callbackPath, h.handleCallback).Methods("GET")
	router.HandleFunc("/auth/keycloak/provider", h.describeProvider).Methods("GET")
	router.HandleFunc("/auth/keycloak/settings", h.listSettings).Methods("GET")
}

// initiateLogin handles GET /auth/keycloak/login
func (h *Handlers) initiateLogin(w http.ResponseWriter, r *http.Request) {
	ic := &initContext{
		handlers: h,
		w:        w,
		r:        r,
		returnTo: safeReturnTo(r.URL.Query().Get("return_to")),
	}

	err := h.provider.Init(r.Context(), ic)
	switch {
	case err == nil:
	case errors.Is(err, ErrProviderDisabled):
		httputil.WriteForbidden(w, "provider is disabled")
	default:
		h.writeFlowError(w, err, http.StatusInternalServerError, "failed to start login")
	}
}

// handleCallback handles GET /auth/keycloak/callback
func (h *Handlers) handleCallback(w http.ResponseWriter, r *http.Request) {
	cc := &callbackContext{handlers: h, w: w, r: r}

	if err := h.provider.Callback(r.Context(), cc); err != nil {
		h.writeFlowError(w, err, http.StatusUnauthorized, "authentication failed")
	}
}

func (h *Handlers) writeFlowError(w http.ResponseWriter, err error, status int, message string) {
	kind, _ := KindOf(err)
	switch kind {
	case KindConfig:
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "provider misconfigured")
	case KindBuild:
		httputil.WriteServiceUnavailable(w, "identity provider unavailable, try again")
	default:
		httputil.WriteErrorMessage(w, status, message)
	}
}

// describeProvider handles GET /auth/keycloak/provider
func (h *Handlers) describeProvider(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"key":                 h.provider.Key(),
		"name":                h.provider.Name(),
		"display":             h.provider.Display(),
		"enabled":             h.provider.IsEnabled(),
		"allow_users_sign_up": h.provider.AllowsUsersToSignUp(),
		"login_url":           loginPath,
	})
}

// listSettings handles GET /auth/keycloak/settings
func (h *Handlers) listSettings(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, PropertyDefinitions())
}

func (h *Handlers) callbackURL() string {
	return h.baseURL + callbackPath
}

func (h *Handlers) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: callbackPath, MaxAge: -1})
}

type initContext struct {
	handlers *Handlers
	w        http.ResponseWriter
	r        *http.Request
	returnTo string
}

func (c *initContext) CallbackURL() string { return c.handlers.callbackURL() }

func (c *initContext) StoreState(ctx context.Context, state string) error {
	pending := PendingLogin{ReturnTo: c.returnTo, CreatedAt: time.Now()}
	if err := c.handlers.states.Save(ctx, state, pending); err != nil {
		return err
	}

	// Binds the state to this browser.
	http.SetCookie(c.w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     callbackPath,
		HttpOnly: true,
		Secure:   c.handlers.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.handlers.states.TTL().Seconds()),
	})
	return nil
}

func (c *initContext) RedirectTo(target string) {
	http.Redirect(c.w, c.r, target, http.StatusFound)
}

type callbackContext struct {
	handlers *Handlers
	w        http.ResponseWriter
	r        *http.Request
	pending  PendingLogin
}

func (c *callbackContext) Request() *http.Request { return c.r }
func (c *callbackContext) CallbackURL() string    { return c.handlers.callbackURL() }

func (c *callbackContext) VerifyState(ctx context.Context, state string) error {
	cookie, err := c.r.Cookie(stateCookieName)
	if err != nil {
		return ErrStateMismatch
	}
	c.handlers.clearStateCookie(c.w)
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return ErrStateMismatch
	}

	pending, err := c.handlers.states.Consume(ctx, state)
	if err != nil {
		return err
	}
	c.pending = pending
	return nil
}

func (c *callbackContext) Authenticate(ctx context.Context, identity *UserIdentity, allowSignUp bool) error {
	return c.handlers.authenticator.Authenticate(ctx, c.w, c.r, identity, allowSignUp)
}

func (c *callbackContext) RedirectToRequestedPage() {
	target := c.pending.ReturnTo
	if target == "" {
		target = "/"
	}
	http.Redirect(c.w, c.r, target, http.StatusFound)
}

// safeReturnTo only accepts local absolute paths
func safeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	return raw
}
