package confloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix recognized on environment variables.
const DefaultEnvPrefix = "DOTVAULT_"

// Loader merges configuration sources into a koanf tree and unmarshals
// the result into a target struct via its koanf tags.
type Loader struct {
	tree      *koanf.Koanf
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile points the loader at a YAML configuration file.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader creates a loader. Without WithConfigFile only environment
// variables are consulted.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		tree:      koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configured sources in priority order and unmarshals
// the merged tree into target. Target should carry its defaults before
// the call; keys absent from every source are left untouched.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.tree.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("config file %s: %w", l.filePath, err)
		}
	}
	if err := l.loadEnv(); err != nil {
		return err
	}
	if err := l.tree.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// loadEnv merges environment variables. DOTVAULT_SERVER_HTTP_ADDRESS
// becomes the key server.http.address.
func (l *Loader) loadEnv() error {
	toKey := func(name string) string {
		name = strings.TrimPrefix(name, l.envPrefix)
		return strings.ReplaceAll(strings.ToLower(name), "_", ".")
	}
	if err := l.tree.Load(env.Provider(l.envPrefix, ".", toKey), nil); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// LoadMap merges an in-memory key map, highest priority. Used by tests
// and flag overrides.
func (l *Loader) LoadMap(values map[string]any) error {
	if err := l.tree.Load(mapSource(values), nil); err != nil {
		return fmt.Errorf("map source: %w", err)
	}
	return nil
}

// All returns the merged tree as a flat key map.
func (l *Loader) All() map[string]any {
	return l.tree.All()
}

var errMapSourceBytes = errors.New("confloader: map source has no byte form")

// mapSource adapts a plain map to koanf's provider interface. koanf
// calls Read when ReadBytes reports no byte form.
type mapSource map[string]any

func (m mapSource) ReadBytes() ([]byte, error) { return nil, errMapSourceBytes }

func (m mapSource) Read() (map[string]any, error) { return m, nil }
