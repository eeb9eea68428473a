package keycloak

import (
	"fmt"
	"strings"
)

// Registered claim names read into IdentityClaims fields. Everything else
// lands in OtherClaims.
var standardClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {},
	"auth_time": {}, "nonce": {}, "acr": {}, "azp": {}, "typ": {}, "session_state": {}, "sid": {},
	"at_hash": {}, "c_hash": {},
	"preferred_username": {}, "email": {}, "name": {}, "given_name": {}, "family_name": {},
}

// IdentityClaims is the decoded view of an ID token
type IdentityClaims struct {
	Subject           string
	PreferredUsername string
	Email             string
	Name              string
	GivenName         string
	FamilyName        string
	Other             OtherClaims
}

// OtherClaims holds provider specific claims keyed by claim name
type OtherClaims map[string]any

// Lookup returns the claim value; a JSON null counts as absent
func (c OtherClaims) Lookup(key string) (any, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the claim as a string. Numbers and booleans are formatted,
// objects and arrays are not strings and report false.
func (c OtherClaims) String(key string) (string, bool) {
	v, ok := c.Lookup(key)
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case []any, map[string]any:
		return "", false
	default:
		return fmt.Sprint(val), true
	}
}

// Strings returns a list claim's non-null elements as strings
func (c OtherClaims) Strings(key string) ([]string, bool) {
	v, ok := c.Lookup(key)
	if !ok {
		return nil, false
	}
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case []string:
		return append([]string(nil), val...), true
	default:
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out, true
}

// ClaimsFromMap splits a raw claim set into IdentityClaims
func ClaimsFromMap(raw map[string]any) IdentityClaims {
	claims := IdentityClaims{
		Subject:           stringClaim(raw, "sub"),
		PreferredUsername: stringClaim(raw, "preferred_username"),
		Email:             stringClaim(raw, "email"),
		Name:              stringClaim(raw, "name"),
		GivenName:         stringClaim(raw, "given_name"),
		FamilyName:        stringClaim(raw, "family_name"),
		Other:             make(OtherClaims),
	}
	for k, v := range raw {
		if _, ok := standardClaims[k]; ok {
			continue
		}
		claims.Other[k] = v
	}
	return claims
}

func stringClaim(raw map[string]any, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

// splitList splits a comma delimited claim, trimming each element
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
