package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/keycloak-auth/pkg/config"
	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func identity(login string) *keycloak.UserIdentity {
	return &keycloak.UserIdentity{
		ProviderID:    "f3b1c2d4",
		ProviderLogin: login,
		Login:         login,
		Name:          "Jane Doe",
		Email:         "jane@example.com",
		Groups:        []string{"admins"},
	}
}

func TestUserDirectory_SignUp(t *testing.T) {
	users := newUserDirectory()

	_, err := users.upsert(identity("jdoe"), false)
	require.ErrorIs(t, err, errSignUpNotAllowed)
	_, ok := users.get("jdoe")
	assert.False(t, ok)

	acct, err := users.upsert(identity("jdoe"), true)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", acct.Name)
	assert.Equal(t, []string{"admins"}, acct.Groups)

	// existing accounts sign in even when sign up is closed
	again := identity("jdoe")
	again.Name = "Jane Q. Doe"
	again.Groups = nil
	acct, err = users.upsert(again, false)
	require.NoError(t, err)
	assert.Equal(t, "Jane Q. Doe", acct.Name)
	assert.Equal(t, []string{"admins"}, acct.Groups, "groups are kept when sync is off")
}

func TestSessionManager_Lifecycle(t *testing.T) {
	sessions := newSessionManager(newUserDirectory(), true, quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/keycloak/callback", nil)
	require.NoError(t, sessions.Authenticate(context.Background(), rec, req, identity("jdoe"), true))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, sessionCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)

	home := sessions.middleware(http.HandlerFunc(sessions.whoami))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	home.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var acct account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&acct))
	assert.Equal(t, "jdoe", acct.Login)
	assert.Equal(t, "jane@example.com", acct.Email)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	sessions.logout(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	home.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionManager_RejectsSignUp(t *testing.T) {
	sessions := newSessionManager(newUserDirectory(), false, quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/keycloak/callback", nil)
	err := sessions.Authenticate(context.Background(), rec, req, identity("jdoe"), false)

	require.ErrorIs(t, err, errSignUpNotAllowed)
	assert.Empty(t, rec.Result().Cookies())
}

func TestWhoami_Anonymous(t *testing.T) {
	sessions := newSessionManager(newUserDirectory(), false, quietLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "unknown"})
	sessions.middleware(http.HandlerFunc(sessions.whoami)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtensionList_Register(t *testing.T) {
	host := newExtensionList(quietLogger())
	provider := keycloak.Register(host, keycloak.NewMapSettings(nil), keycloak.WithLogger(quietLogger()))

	all := host.all()
	require.Len(t, all, 3+len(keycloak.PropertyDefinitions()))
	assert.Same(t, provider, all[0])
	assert.IsType(t, keycloak.PropertyDefinition{}, all[len(all)-1])
}

func TestOpenStateStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, client, err := openStateStore(context.Background(), config.StateConfig{Type: "memory", MemorySize: 10, TTL: time.Minute})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &keycloak.MemoryStateStore{}, store)

	store, client, err = openStateStore(context.Background(), config.StateConfig{
		Type:          "redis",
		RedisURL:      "redis://" + mr.Addr() + "/0",
		RedisPoolSize: 2,
		TTL:           time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
	assert.Equal(t, 2, client.Options().PoolSize)
	assert.IsType(t, &keycloak.RedisStateStore{}, store)

	_, _, err = openStateStore(context.Background(), config.StateConfig{Type: "redis", RedisURL: "not a url", TTL: time.Minute})
	assert.Error(t, err)
}

func TestOpenSettings_Env(t *testing.T) {
	t.Setenv("AUTH_KEYCLOAK_ENABLED", "true")

	source, closeFn, err := openSettings(config.SettingsConfig{Source: "env"}, quietLogger())
	require.NoError(t, err)
	defer closeFn()

	v, ok := source.Lookup(keycloak.SettingEnabled)
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}
