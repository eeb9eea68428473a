// Package keycloak lets a host application delegate user login to Keycloak.
//
// # Overview
//
// The package runs the OAuth2/OIDC authorization-code flow against a Keycloak
// realm and maps the returned ID token into a normalized UserIdentity.
//
//	Initiate ──▶ Keycloak login page ──▶ Callback ──▶ code exchange ──▶ IdentityMapper ──▶ host
//
// # Configuration
//
// The provider reads five options from a host SettingsSource:
//
//	auth.keycloak.enabled             false
//	auth.keycloak.config              Keycloak OIDC adapter JSON
//	auth.keycloak.allowUsersToSignUp  true
//	auth.keycloak.loginStrategy       "Same as Keycloak login" | "Unique"
//	auth.keycloak.groupsSync          false
//
// The adapter JSON is the one Keycloak exports for a client:
//
//	{
//	  "realm": "acme",
//	  "auth-server-url": "https://sso.example.com/",
//	  "resource": "my-app",
//	  "credentials": {"secret": "..."}
//	}
//
// # Usage Example
//
//	provider := keycloak.NewIdentityProvider(settings, keycloak.WithLogger(log))
//	states := keycloak.NewMemoryStateStore(0, 0)
//	handlers := keycloak.NewHandlers(provider, states, sessions, "https://app.example.com", log)
//	handlers.RegisterRoutes(router)
//
// # CSRF protection
//
// Every Initiate issues a fresh state token through InitContext.StoreState and
// every Callback hands the returned state to CallbackContext.VerifyState before
// the code is exchanged. The HTTP adapter binds the state to a cookie and
// consumes it from a StateStore exactly once.
package keycloak
