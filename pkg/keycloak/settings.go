package keycloak

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Setting keys
const (
	SettingEnabled            = "auth.keycloak.enabled"
	SettingConfig             = "auth.keycloak.config"
	SettingAllowUsersToSignUp = "auth.keycloak.allowUsersToSignUp"
	SettingLoginStrategy      = "auth.keycloak.loginStrategy"
	SettingGroupsSync         = "auth.keycloak.groupsSync"

	settingsCategory    = "keycloak"
	settingsSubCategory = "authentication"
)

// LoginStrategy selects how the host login is derived from the Keycloak login
type LoginStrategy string

const (
	LoginStrategyUnique        LoginStrategy = "Unique"
	LoginStrategyProviderLogin LoginStrategy = "Same as Keycloak login"
)

// LoginStrategies lists every supported strategy
func LoginStrategies() []LoginStrategy {
	return []LoginStrategy{LoginStrategyUnique, LoginStrategyProviderLogin}
}

// SettingsSource is the host-managed key/value store the provider reads from
type SettingsSource interface {
	Lookup(key string) (string, bool)
}

// MapSettings is a SettingsSource backed by a map, safe for concurrent use
type MapSettings struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMapSettings creates a map-backed settings source
func NewMapSettings(values map[string]string) *MapSettings {
	m := &MapSettings{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Lookup implements SettingsSource
func (m *MapSettings) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set updates a single value
func (m *MapSettings) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// AuthSettings is a consistent snapshot of the provider options for one request
type AuthSettings struct {
	Enabled            bool
	ConfigJSON         string
	AllowUsersToSignUp bool
	LoginStrategy      LoginStrategy
	GroupsSync         bool
}

// IsEnabled reports whether logins may go through Keycloak. A missing
// configuration disables the provider whatever the enabled flag says.
func (s AuthSettings) IsEnabled() bool {
	return s.Enabled && strings.TrimSpace(s.ConfigJSON) != ""
}

// SettingsReader reads AuthSettings from a SettingsSource, fresh on every call
type SettingsReader struct {
	source SettingsSource
}

// NewSettingsReader creates a settings reader
func NewSettingsReader(source SettingsSource) *SettingsReader {
	return &SettingsReader{source: source}
}

// Snapshot captures the current settings
func (r *SettingsReader) Snapshot() AuthSettings {
	return AuthSettings{
		Enabled:            r.boolean(SettingEnabled),
		ConfigJSON:         r.str(SettingConfig),
		AllowUsersToSignUp: r.boolean(SettingAllowUsersToSignUp),
		LoginStrategy:      LoginStrategy(r.str(SettingLoginStrategy)),
		GroupsSync:         r.boolean(SettingGroupsSync),
	}
}

func (r *SettingsReader) IsEnabled() bool          { return r.Snapshot().IsEnabled() }
func (r *SettingsReader) KeycloakJSON() string     { return r.str(SettingConfig) }
func (r *SettingsReader) AllowUsersToSignUp() bool { return r.boolean(SettingAllowUsersToSignUp) }
func (r *SettingsReader) SyncGroups() bool         { return r.boolean(SettingGroupsSync) }

func (r *SettingsReader) LoginStrategy() LoginStrategy {
	return LoginStrategy(r.str(SettingLoginStrategy))
}

func (r *SettingsReader) str(key string) string {
	if r.source != nil {
		if v, ok := r.source.Lookup(key); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return defaultValue(key)
}

func (r *SettingsReader) boolean(key string) bool {
	v := strings.TrimSpace(r.str(key))
	b, err := strconv.ParseBool(v)
	if err != nil {
		b, _ = strconv.ParseBool(defaultValue(key))
	}
	return b
}

func defaultValue(key string) string {
	for _, d := range PropertyDefinitions() {
		if d.Key == key {
			return d.DefaultValue
		}
	}
	return ""
}

// PropertyType is the admin UI widget for a property
type PropertyType string

const (
	PropertyTypeBoolean          PropertyType = "BOOLEAN"
	PropertyTypeText             PropertyType = "TEXT"
	PropertyTypeSingleSelectList PropertyType = "SINGLE_SELECT_LIST"
)

// PropertyDefinition describes one option for the host's settings UI
type PropertyDefinition struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Category     string       `json:"category"`
	SubCategory  string       `json:"sub_category"`
	Type         PropertyType `json:"type"`
	DefaultValue string       `json:"default_value,omitempty"`
	Options      []string     `json:"options,omitempty"`
	Index        int          `json:"index"`
}

// PropertyDefinitions returns the options the provider reads, in display order
func PropertyDefinitions() []PropertyDefinition {
	defs := []PropertyDefinition{
		{
			Key:          SettingEnabled,
			Name:         "Enabled",
			Description:  "Enable Keycloak users to login. Value is ignored if 'Keycloak JSON' is not defined.",
			Type:         PropertyTypeBoolean,
			DefaultValue: "false",
		},
		{
			Key:  SettingConfig,
			Name: "Keycloak JSON",
			Description: "Keycloak JSON configuration content. Copy it from '[Your realm] -> Clients -> " +
				"[The client] -> Installation -> Keycloak OIDC JSON'.",
			Type: PropertyTypeText,
		},
		{
			Key:  SettingAllowUsersToSignUp,
			Name: "Allow users to sign-up",
			Description: "Allow new users to authenticate. When set to 'false', only existing users " +
				"will be able to authenticate.",
			Type:         PropertyTypeBoolean,
			DefaultValue: "true",
		},
		{
			Key:  SettingLoginStrategy,
			Name: "Login generation strategy",
			Description: fmt.Sprintf("When the login strategy is set to '%s', the user's login will be "+
				"generated so that it is unique. When the login strategy is set to '%s', the user's "+
				"login will be the Keycloak login.", LoginStrategyUnique, LoginStrategyProviderLogin),
			Type:         PropertyTypeSingleSelectList,
			DefaultValue: string(LoginStrategyProviderLogin),
			Options:      []string{string(LoginStrategyUnique), string(LoginStrategyProviderLogin)},
		},
		{
			Key:  SettingGroupsSync,
			Name: "Synchronize user client roles",
			Description: "The user will be associated to groups named after the 'groups' " +
				"(or 'roles') claim of the ID token.",
			Type:         PropertyTypeBoolean,
			DefaultValue: "false",
		},
	}

	for i := range defs {
		defs[i].Category = settingsCategory
		defs[i].SubCategory = settingsSubCategory
		defs[i].Index = i + 1
	}
	return defs
}
