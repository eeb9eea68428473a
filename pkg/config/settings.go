package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvSettings reads provider options from environment variables:
// auth.keycloak.loginStrategy is read from AUTH_KEYCLOAK_LOGINSTRATEGY.
type EnvSettings struct {
	lookup func(string) (string, bool)
}

// NewEnvSettings creates an environment-backed settings source
func NewEnvSettings() *EnvSettings {
	return &EnvSettings{lookup: os.LookupEnv}
}

// EnvKey returns the environment variable name for a setting key
func EnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Lookup implements keycloak.SettingsSource
func (s *EnvSettings) Lookup(key string) (string, bool) {
	return s.lookup(EnvKey(key))
}

// FileSettings reads provider options from a YAML file and, when watched,
// picks up edits without a restart. Nested maps are flattened with dots:
//
//	auth:
//	  keycloak:
//	    enabled: true
//	    config: |
//	      {"realm": "acme", ...}
type FileSettings struct {
	path    string
	log     *logrus.Logger
	mu      sync.RWMutex
	values  map[string]string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileSettings loads the settings file once
func NewFileSettings(path string, log *logrus.Logger) (*FileSettings, error) {
	if log == nil {
		log = logrus.New()
	}
	s := &FileSettings{path: path, log: log}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup implements keycloak.SettingsSource
func (s *FileSettings) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *FileSettings) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse settings file: %w", err)
	}

	values := make(map[string]string)
	flatten("", doc, values)

	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
	return nil
}

func flatten(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Watch reloads the file whenever it changes until Close is called. The parent
// directory is watched so editors that replace the file are handled.
func (s *FileSettings) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch settings directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop()
	return nil
}

func (s *FileSettings) watchLoop() {
	defer close(s.done)
	target := filepath.Clean(s.path)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.WithError(err).Warn("Keeping previous settings")
				continue
			}
			s.log.WithField("file", s.path).Info("Settings reloaded")

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("Settings watcher error")
		}
	}
}

// Close stops watching
func (s *FileSettings) Close() error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	return err
}
