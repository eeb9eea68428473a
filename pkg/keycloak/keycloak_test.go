package keycloak

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

const (
	testRealm    = "acme"
	testClientID = "my-app"
	testSecret   = "s3cr3t"
	testCode     = "good-code"
)

// fakeKeycloak serves the token and certs endpoints of one realm
type fakeKeycloak struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	kid    string

	mu          sync.Mutex
	claims      jwt.MapClaims
	omitIDToken bool
	delay       time.Duration

	tokenCalls atomic.Int32
	lastForm   atomic.Value
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	f := &fakeKeycloak{t: t, key: key, kid: "test-key"}
	f.claims = jwt.MapClaims{"preferred_username": "jdoe", "name": "John Doe", "email": "jdoe@example.com"}

	router := mux.NewRouter()
	realm := router.PathPrefix("/realms/" + testRealm + "/protocol/openid-connect").Subrouter()
	realm.HandleFunc("/token", f.token).Methods("POST")
	realm.HandleFunc("/certs", f.certs).Methods("GET")

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeKeycloak) realmURL() string {
	return f.server.URL + "/realms/" + testRealm
}

// adapterJSON is the client's exported adapter configuration
func (f *fakeKeycloak) adapterJSON() string {
	return fmt.Sprintf(`{
  "realm": %q,
  "auth-server-url": %q,
  "resource": %q,
  "credentials": {"secret": %q}
}`, testRealm, f.server.URL, testClientID, testSecret)
}

// unverifiedJSON points at explicit endpoints without a certs URL
func (f *fakeKeycloak) unverifiedJSON() string {
	base := f.realmURL() + "/protocol/openid-connect"
	return fmt.Sprintf(`{
  "resource": %q,
  "credentials": {"secret": %q},
  "authorization-endpoint": %q,
  "token-endpoint": %q
}`, testClientID, testSecret, base+"/auth", base+"/token")
}

func (f *fakeKeycloak) setClaims(claims jwt.MapClaims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = claims
}

func (f *fakeKeycloak) signed(extra jwt.MapClaims) string {
	f.t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": f.realmURL(),
		"aud": testClientID,
		"sub": "f3b1c2d4",
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = f.kid
	raw, err := token.SignedString(f.key)
	if err != nil {
		f.t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

func (f *fakeKeycloak) token(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)

	f.mu.Lock()
	delay, claims, omit := f.delay, f.claims, f.omitIDToken
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.lastForm.Store(r.PostForm)

	user, pass, ok := r.BasicAuth()
	if !ok || user != testClientID || pass != testSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}
	if r.PostForm.Get("grant_type") != "authorization_code" || r.PostForm.Get("code") != testCode {
		writeOAuthError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	resp := map[string]any{
		"access_token": "access-token",
		"token_type":   "Bearer",
		"expires_in":   300,
	}
	if !omit {
		resp["id_token"] = f.signed(claims)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeKeycloak) certs(w http.ResponseWriter, r *http.Request) {
	pub := f.key.PublicKey
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": f.kid,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}
