package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/keycloak-auth/pkg/contextkeys"
	"github.com/platinummonkey/keycloak-auth/pkg/httputil"
	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
	"github.com/platinummonkey/keycloak-auth/pkg/observability"
)

const (
	sessionCookieName = "keycloak_auth_session"
	sessionTTL        = 8 * time.Hour
	maxSessions       = 100000
)

var errSignUpNotAllowed = errors.New("new users may not sign up")

// account is a host user known to the directory
type account struct {
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

// userDirectory is the host's in-memory user store
type userDirectory struct {
	mu    sync.RWMutex
	users map[string]*account
}

func newUserDirectory() *userDirectory {
	return &userDirectory{users: make(map[string]*account)}
}

// upsert records a login, creating the account only when sign up is allowed
func (d *userDirectory) upsert(identity *keycloak.UserIdentity, allowSignUp bool) (*account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	acct, ok := d.users[identity.Login]
	if !ok {
		if !allowSignUp {
			return nil, fmt.Errorf("%w: %s", errSignUpNotAllowed, identity.Login)
		}
		acct = &account{Login: identity.Login, CreatedAt: now}
		d.users[identity.Login] = acct
	}

	acct.Name = identity.Name
	acct.Email = identity.Email
	if identity.Groups != nil {
		acct.Groups = identity.Groups
	}
	acct.LastLogin = now

	snapshot := *acct
	return &snapshot, nil
}

func (d *userDirectory) get(login string) (*account, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acct, ok := d.users[login]
	if !ok {
		return nil, false
	}
	snapshot := *acct
	return &snapshot, true
}

// sessionManager implements keycloak.Authenticator with a cookie session
type sessionManager struct {
	users    *userDirectory
	sessions *expirable.LRU[string, string]
	secure   bool
	log      *logrus.Logger
}

func newSessionManager(users *userDirectory, secure bool, log *logrus.Logger) *sessionManager {
	return &sessionManager{
		users:    users,
		sessions: expirable.NewLRU[string, string](maxSessions, nil, sessionTTL),
		secure:   secure,
		log:      log,
	}
}

// Authenticate implements keycloak.Authenticator
func (s *sessionManager) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, identity *keycloak.UserIdentity, allowSignUp bool) error {
	acct, err := s.users.upsert(identity, allowSignUp)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	s.sessions.Add(id, acct.Login)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	observability.WithTraceContext(ctx, s.log).WithFields(logrus.Fields{
		"login":      acct.Login,
		"request_id": contextkeys.GetRequestID(ctx),
	}).Info("Session started")
	return nil
}

// middleware puts the signed-in user's login into the request context
func (s *sessionManager) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookieName); err == nil {
			if login, ok := s.sessions.Get(c.Value); ok {
				r = r.WithContext(contextkeys.WithUserLogin(r.Context(), login))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// whoami handles GET /
func (s *sessionManager) whoami(w http.ResponseWriter, r *http.Request) {
	login := contextkeys.GetUserLogin(r.Context())
	if login == "" {
		httputil.WriteUnauthorized(w, "not signed in")
		return
	}
	acct, ok := s.users.get(login)
	if !ok {
		httputil.WriteUnauthorized(w, "not signed in")
		return
	}
	httputil.WriteSuccess(w, acct)
}

// logout handles POST /logout
func (s *sessionManager) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		s.sessions.Remove(c.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}
