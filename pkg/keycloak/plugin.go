package keycloak

// ExtensionRegistry is the host's extension mechanism
type ExtensionRegistry interface {
	AddExtension(extension any)
}

// Register adds the identity provider, the settings accessor, the identity
// factory and every property definition to the host.
func Register(registry ExtensionRegistry, source SettingsSource, opts ...Option) *IdentityProvider {
	provider := NewIdentityProvider(source, opts...)

	registry.AddExtension(provider)
	registry.AddExtension(provider.Settings())
	registry.AddExtension(provider.Mapper())
	for _, def := range PropertyDefinitions() {
		registry.AddExtension(def)
	}

	return provider
}
