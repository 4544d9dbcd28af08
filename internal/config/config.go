package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/baton/internal/config/loader"
)

// Source indicates where a configuration layer came from.
type Source uint8

const (
	// SourceBuiltin represents built-in default configuration.
	SourceBuiltin Source = iota
	// SourceFile represents the config file.
	SourceFile
	// SourceEnv represents environment variables.
	SourceEnv
	// SourceArgs represents command-line flags.
	SourceArgs

	sourceCount
)

// String returns a human-readable name for the source.
func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "environment"
	case SourceArgs:
		return "arguments"
	default:
		return "unknown"
	}
}

// Config provides unified access to the baton configuration.
type Config struct {
	mu sync.RWMutex

	// layers is indexed by Source; higher sources override lower ones.
	layers [sourceCount]map[string]any
	merged map[string]any
	dirty  bool

	fs          loader.FileSystem
	file        string
	explicit    bool
	searchPaths []string
	envPrefix   string

	// configErrors stores type errors met by the section accessors.
	configErrors map[string]error
}

// Option configures a Config instance.
type Option func(*Config)

// WithFile loads the given config file. A missing file is an error.
func WithFile(path string) Option {
	return func(c *Config) {
		c.file = path
		c.explicit = path != ""
	}
}

// WithSearchPaths replaces the files tried when no file was given.
// The first one that exists is loaded.
func WithSearchPaths(paths ...string) Option {
	return func(c *Config) {
		c.searchPaths = paths
	}
}

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables the environment layer.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithFileSystem sets the file system config files are read from.
func WithFileSystem(fs loader.FileSystem) Option {
	return func(c *Config) {
		c.fs = fs
	}
}

// New creates a new Config holding only the built-in defaults.
func New(opts ...Option) *Config {
	c := &Config{
		fs:          loader.DefaultFS(),
		searchPaths: DefaultSearchPaths(),
		envPrefix:   loader.DefaultEnvPrefix,
		dirty:       true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.layers[SourceBuiltin] = defaultConfig()
	return c
}

// DefaultSearchPaths returns the config files tried when none is given:
// baton.toml and baton.yaml in the working directory, then the user's
// config directory.
func DefaultSearchPaths() []string {
	paths := []string{"baton.toml", "baton.yaml", "baton.yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "baton", "config.toml"),
			filepath.Join(dir, "baton", "config.yaml"),
		)
	}
	return paths
}

// Load reads the config file and environment layers. Values set with Set
// are kept.
func (c *Config) Load(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadFile(); err != nil {
		return err
	}
	if err := c.loadEnvironment(); err != nil {
		return err
	}
	c.dirty = true
	return nil
}

// loadFile loads the explicit file, or the first search path that exists.
func (c *Config) loadFile() error {
	c.layers[SourceFile] = nil

	if c.explicit {
		data, err := loader.ForPath(c.fs, c.file).Load()
		if err != nil {
			return err
		}
		if data == nil {
			return fmt.Errorf("%w: %s", ErrFileNotFound, c.file)
		}
		c.layers[SourceFile] = data
		return nil
	}

	c.file = ""
	for _, path := range c.searchPaths {
		data, err := loader.ForPath(c.fs, path).Load()
		if err != nil {
			return err
		}
		if data != nil {
			c.file = path
			c.layers[SourceFile] = data
			return nil
		}
	}
	return nil
}

func (c *Config) loadEnvironment() error {
	c.layers[SourceEnv] = nil
	if c.envPrefix == "" {
		return nil
	}
	data, err := loader.NewEnvLoader(c.envPrefix).Load()
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}
	c.layers[SourceEnv] = data
	return nil
}

// File returns the path of the loaded config file, or "" if none was found.
func (c *Config) File() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.file
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getPath(c.mergedLocked(), path)
}

// Source returns the highest layer that sets path.
func (c *Config) Source(path string) (Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for s := SourceArgs; ; s-- {
		if _, ok := getPath(c.layers[s], path); ok {
			return s, true
		}
		if s == SourceBuiltin {
			return 0, false
		}
	}
}

// Set sets a value at the given path in the command-line layer.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.layers[SourceArgs] == nil {
		c.layers[SourceArgs] = make(map[string]any)
	}
	if err := setPath(c.layers[SourceArgs], path, value); err != nil {
		return err
	}
	c.dirty = true
	return nil
}

// Merged returns a copy of the fully merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return loader.Clone(c.mergedLocked())
}

func (c *Config) mergedLocked() map[string]any {
	if !c.dirty && c.merged != nil {
		return c.merged
	}
	result := make(map[string]any)
	for _, data := range c.layers {
		result = loader.DeepMerge(result, data)
	}
	c.merged = result
	c.dirty = false
	return result
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "int", Actual: fmt.Sprintf("%q", val)}
		}
		return n, nil
	default:
		return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
	}
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		if b, ok := parseBool(val); ok {
			return b, nil
		}
		return false, &TypeError{Path: path, Expected: "bool", Actual: fmt.Sprintf("%q", val)}
	default:
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
}

// parseBool accepts the spellings used in environment variables.
func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// GetDuration returns a duration at the given path. Strings are parsed
// with time.ParseDuration and bare integers, also as strings, are
// milliseconds.
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case int64:
		return time.Duration(val) * time.Millisecond, nil
	case int:
		return time.Duration(val) * time.Millisecond, nil
	case string:
		if ms, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, &TypeError{Path: path, Expected: "duration", Actual: fmt.Sprintf("%q", val)}
		}
		return d, nil
	default:
		return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
	}
}

// GetStringSlice returns a string slice at the given path. A single
// string is split on whitespace.
func (c *Config) GetStringSlice(path string) ([]string, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, ErrSettingNotFound
	}

	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...), nil
	case string:
		return strings.Fields(val), nil
	case []any:
		result := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
			}
			result[i] = s
		}
		return result, nil
	default:
		return nil, &TypeError{Path: path, Expected: "[]string", Actual: typeName(v)}
	}
}

// GetStringMap returns a table of strings at the given path.
func (c *Config) GetStringMap(path string) (map[string]string, error) {
	v, ok := c.Get(path)
	if !ok {
		return nil, ErrSettingNotFound
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &TypeError{Path: path, Expected: "map", Actual: typeName(v)}
	}
	result := make(map[string]string, len(m))
	for k, item := range m {
		switch val := item.(type) {
		case string:
			result[k] = val
		case int64, float64, bool:
			result[k] = fmt.Sprint(val)
		default:
			return nil, &TypeError{Path: path + "." + k, Expected: "string", Actual: typeName(item)}
		}
	}
	return result, nil
}

// defaultConfig returns the built-in defaults layer.
func defaultConfig() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"command":     "clangd",
			"args":        []any{},
			"waitForExit": true,
			"exitTimeout": "5s",
			"chunkSize":   int64(4096),
		},
		"completion": map[string]any{
			"maxSuggestions": int64(13),
		},
		"protocol": map[string]any{
			"correlation": "sequential",
		},
		"logging": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"watch": map[string]any{
			"enabled":  false,
			"debounce": "100ms",
		},
	}
}

// getPath retrieves a value from a nested map using a dot-separated path.
func getPath(m map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 || m == nil {
		return nil, false
	}

	current := any(m)
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = cm[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath sets a value in a nested map using a dot-separated path.
func setPath(m map[string]any, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ErrInvalidPath
	}

	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is not a table", ErrInvalidPath, part)
		}
		current = nextMap
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// splitPath splits a dot-separated path into parts, skipping empty ones.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '.' })
}

// typeName returns the type name for error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case int, int64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case time.Duration:
		return "duration"
	case []string:
		return "[]string"
	case []any:
		return "[]any"
	case map[string]any:
		return "map"
	default:
		return "unknown"
	}
}
