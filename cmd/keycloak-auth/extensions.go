package main

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/keycloak-auth/pkg/keycloak"
)

// extensionList is the host side of keycloak.ExtensionRegistry
type extensionList struct {
	mu         sync.Mutex
	extensions []any
	log        *logrus.Logger
}

func newExtensionList(log *logrus.Logger) *extensionList {
	return &extensionList{log: log}
}

// AddExtension implements keycloak.ExtensionRegistry
func (l *extensionList) AddExtension(extension any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extensions = append(l.extensions, extension)

	switch ext := extension.(type) {
	case keycloak.PropertyDefinition:
		l.log.WithField("key", ext.Key).Debug("Registered property")
	default:
		l.log.WithField("type", fmt.Sprintf("%T", ext)).Debug("Registered extension")
	}
}

func (l *extensionList) all() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.extensions...)
}
