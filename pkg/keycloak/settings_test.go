package keycloak

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsReader_Defaults(t *testing.T) {
	r := NewSettingsReader(NewMapSettings(nil))

	s := r.Snapshot()
	assert.False(t, s.Enabled)
	assert.Empty(t, s.ConfigJSON)
	assert.True(t, s.AllowUsersToSignUp)
	assert.Equal(t, LoginStrategyProviderLogin, s.LoginStrategy)
	assert.False(t, s.GroupsSync)
	assert.False(t, r.IsEnabled())
}

func TestSettingsReader_BlankFallsBackToDefault(t *testing.T) {
	for _, blank := range []string{"", "   "} {
		r := NewSettingsReader(NewMapSettings(map[string]string{
			SettingLoginStrategy:      blank,
			SettingAllowUsersToSignUp: blank,
		}))

		s := r.Snapshot()
		assert.Equal(t, LoginStrategyProviderLogin, s.LoginStrategy, "strategy %q", blank)
		assert.Equal(t, LoginStrategyProviderLogin, r.LoginStrategy())
		assert.True(t, s.AllowUsersToSignUp)

		id, err := NewIdentityMapper(quietLogger()).Map(ClaimsFromMap(map[string]any{"sub": "s-1", "preferred_username": "bob"}), s)
		require.NoError(t, err)
		assert.Equal(t, "bob", id.Login)
	}
}

func TestSettingsReader_IsEnabled(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		config  string
		want    bool
	}{
		{"enabled with config", "true", adapterJSON, true},
		{"enabled without config", "true", "", false},
		{"enabled with blank config", "true", "   ", false},
		{"disabled with config", "false", adapterJSON, false},
		{"disabled without config", "false", "", false},
		{"malformed flag falls back to default", "yes", adapterJSON, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewSettingsReader(NewMapSettings(map[string]string{
				SettingEnabled: tt.enabled,
				SettingConfig:  tt.config,
			}))
			assert.Equal(t, tt.want, r.IsEnabled())
		})
	}
}

func TestSettingsReader_ReadsFresh(t *testing.T) {
	source := NewMapSettings(map[string]string{SettingGroupsSync: "false"})
	r := NewSettingsReader(source)
	assert.False(t, r.SyncGroups())

	source.Set(SettingGroupsSync, "true")
	source.Set(SettingLoginStrategy, string(LoginStrategyUnique))
	source.Set(SettingAllowUsersToSignUp, "false")

	assert.True(t, r.SyncGroups())
	assert.Equal(t, LoginStrategyUnique, r.LoginStrategy())
	assert.False(t, r.AllowUsersToSignUp())
}

func TestSettingsReader_SnapshotIsStable(t *testing.T) {
	source := NewMapSettings(map[string]string{SettingLoginStrategy: string(LoginStrategyUnique)})
	r := NewSettingsReader(source)

	snap := r.Snapshot()
	source.Set(SettingLoginStrategy, string(LoginStrategyProviderLogin))

	assert.Equal(t, LoginStrategyUnique, snap.LoginStrategy)
}

func TestSettingsReader_NilSource(t *testing.T) {
	r := NewSettingsReader(nil)
	assert.True(t, r.AllowUsersToSignUp())
	assert.Empty(t, r.KeycloakJSON())
}

func TestPropertyDefinitions(t *testing.T) {
	defs := PropertyDefinitions()
	assert.Len(t, defs, 5)

	keys := make([]string, 0, len(defs))
	for i, d := range defs {
		keys = append(keys, d.Key)
		assert.Equal(t, i+1, d.Index)
		assert.Equal(t, "keycloak", d.Category)
		assert.Equal(t, "authentication", d.SubCategory)
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.Description)
	}
	assert.Equal(t, []string{
		SettingEnabled,
		SettingConfig,
		SettingAllowUsersToSignUp,
		SettingLoginStrategy,
		SettingGroupsSync,
	}, keys)

	strategy := defs[3]
	assert.Equal(t, PropertyTypeSingleSelectList, strategy.Type)
	assert.Equal(t, "Same as Keycloak login", strategy.DefaultValue)
	assert.ElementsMatch(t, []string{"Unique", "Same as Keycloak login"}, strategy.Options)
	assert.Len(t, LoginStrategies(), len(strategy.Options))
}
