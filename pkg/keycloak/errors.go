package keycloak

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures of a login attempt
type ErrorKind int

const (
	KindConfig ErrorKind = iota + 1
	KindBuild
	KindCallback
	KindMissingLogin
	KindUnsupportedStrategy
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBuild:
		return "build"
	case KindCallback:
		return "callback"
	case KindMissingLogin:
		return "missing_login"
	case KindUnsupportedStrategy:
		return "unsupported_strategy"
	default:
		return "unknown"
	}
}

// Administrator-facing errors are fatal until the configuration changes.
func (k ErrorKind) Fatal() bool {
	return k == KindConfig
}

var (
	ErrProviderDisabled = errors.New("keycloak provider is disabled")
	ErrStateNotFound    = errors.New("oauth state not found or expired")
	ErrStateMismatch    = errors.New("oauth state does not match")
)

// ConfigError reports malformed or incomplete adapter configuration
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid keycloak configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid keycloak configuration: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error   { return e.Err }
func (e *ConfigError) Kind() ErrorKind { return KindConfig }

// BuildError reports a client descriptor that could not be constructed
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build keycloak deployment: %v", e.Err)
}

func (e *BuildError) Unwrap() error   { return e.Err }
func (e *BuildError) Kind() ErrorKind { return KindBuild }

// CallbackError terminates the current login attempt
type CallbackError struct {
	Reason string
	Err    error
}

func (e *CallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("keycloak callback failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("keycloak callback failed: %s", e.Reason)
}

func (e *CallbackError) Unwrap() error   { return e.Err }
func (e *CallbackError) Kind() ErrorKind { return KindCallback }

// MissingLoginError is returned when the token carries neither preferred_username nor username
type MissingLoginError struct {
	Subject string
}

func (e *MissingLoginError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("no login claim in id token for subject %q", e.Subject)
	}
	return "no login claim in id token"
}

func (e *MissingLoginError) Kind() ErrorKind { return KindMissingLogin }

// UnsupportedStrategyError is returned for a login strategy outside the known set
type UnsupportedStrategyError struct {
	Strategy LoginStrategy
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("login strategy not supported: %q", string(e.Strategy))
}

func (e *UnsupportedStrategyError) Kind() ErrorKind { return KindUnsupportedStrategy }

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return 0, false
}
