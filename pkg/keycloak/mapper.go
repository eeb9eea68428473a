package keycloak

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	usernameClaim = "username"
	groupsClaim   = "groups"
	rolesClaim    = "roles"
)

// UserIdentity is the normalized identity handed to the host
type UserIdentity struct {
	ProviderID    string   `json:"provider_id,omitempty"` // sub claim
	ProviderLogin string   `json:"provider_login"`
	Login         string   `json:"login"`
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	Groups        []string `json:"groups,omitempty"` // nil unless group sync is on
}

// IdentityMapper converts ID token claims into a UserIdentity
type IdentityMapper struct {
	providerKey string
	log         *logrus.Logger
}

// NewIdentityMapper creates an identity mapper
func NewIdentityMapper(log *logrus.Logger) *IdentityMapper {
	if log == nil {
		log = logrus.New()
	}
	return &IdentityMapper{
		providerKey: ProviderKey,
		log:         log,
	}
}

// Map builds the identity for claims under the given settings snapshot
func (m *IdentityMapper) Map(claims IdentityClaims, settings AuthSettings) (*UserIdentity, error) {
	providerLogin, ok := resolveLogin(claims)
	if !ok {
		return nil, &MissingLoginError{Subject: claims.Subject}
	}

	login, err := m.generateLogin(providerLogin, settings.LoginStrategy)
	if err != nil {
		return nil, err
	}

	identity := &UserIdentity{
		ProviderID:    claims.Subject,
		ProviderLogin: providerLogin,
		Login:         login,
		Name:          displayName(claims, providerLogin),
		Email:         claims.Email,
	}

	if settings.GroupsSync {
		identity.Groups = m.groups(claims)
	}

	return identity, nil
}

func resolveLogin(claims IdentityClaims) (string, bool) {
	if claims.PreferredUsername != "" {
		return claims.PreferredUsername, true
	}
	if username, ok := claims.Other.String(usernameClaim); ok && username != "" {
		return username, true
	}
	return "", false
}

func (m *IdentityMapper) generateLogin(login string, strategy LoginStrategy) (string, error) {
	switch strategy {
	case LoginStrategyProviderLogin:
		return login, nil
	case LoginStrategyUnique:
		return fmt.Sprintf("%s@%s", login, m.providerKey), nil
	default:
		return "", &UnsupportedStrategyError{Strategy: strategy}
	}
}

func displayName(claims IdentityClaims, login string) string {
	name := claims.Name
	if name == "" {
		name = claims.GivenName + " " + claims.FamilyName
	}
	if name = strings.TrimSpace(name); name == "" {
		return login
	}
	return name
}

// groups reads the groups claim, falling back to roles. The result is a
// sorted set; an absent claim yields an empty, non-nil set.
func (m *IdentityMapper) groups(claims IdentityClaims) []string {
	key := groupsClaim
	raw, ok := claims.Other.Lookup(groupsClaim)
	if !ok {
		key = rolesClaim
		raw, ok = claims.Other.Lookup(rolesClaim)
	}
	if !ok {
		m.log.Debug("Keycloak token carries no groups or roles claim")
		return []string{}
	}

	m.log.WithFields(logrus.Fields{
		"claim": key,
		"type":  fmt.Sprintf("%T", raw),
	}).Infof("Keycloak client roles/groups: %v", raw)

	var names []string
	if s, isString := raw.(string); isString {
		names = splitList(s)
	} else if list, isList := claims.Other.Strings(key); isList {
		names = list
	} else {
		m.log.Warnf("Ignoring %s claim of unsupported type %T", key, raw)
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
