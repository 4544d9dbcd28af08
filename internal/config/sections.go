package config

import (
	"errors"
	"maps"
	"time"
)

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration. Use Config.Set()
// to update configuration values.

// ServerConfig describes the language server process.
type ServerConfig struct {
	// Command is the server executable.
	Command string

	// Args are passed to the server.
	Args []string

	// Env holds extra environment variables for the server.
	Env map[string]string

	// WorkDir is the server's working directory.
	WorkDir string

	// WaitForExit makes shutdown wait for the server to exit.
	WaitForExit bool

	// ExitTimeout bounds that wait before the server is killed.
	ExitTimeout time.Duration

	// ChunkSize is the read size of the output pumps.
	ChunkSize int
}

// DocumentConfig holds per-document overrides.
type DocumentConfig struct {
	// LanguageID overrides detection from the file extension.
	LanguageID string
}

// CompletionConfig configures the completion pipeline.
type CompletionConfig struct {
	// MaxSuggestions is the largest suggestion list delivered.
	MaxSuggestions int

	// HookScript is a Lua script defining filter_suggestions.
	HookScript string
}

// ProtocolConfig configures the wire protocol.
type ProtocolConfig struct {
	// Correlation is "sequential" or "method".
	Correlation string
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("trace", "debug", "info", "warn", "error").
	Level string

	// Format is "text" or "json".
	Format string

	// File is the log file path; empty logs to stderr.
	File string
}

// WatchConfig configures reloading the document when the file changes.
type WatchConfig struct {
	// Enabled turns the file watcher on.
	Enabled bool

	// Debounce coalesces bursts of file events.
	Debounce time.Duration
}

// Server returns the server section.
func (c *Config) Server() ServerConfig {
	return ServerConfig{
		Command:     c.getStringOr("server.command", "clangd"),
		Args:        c.getStringSliceOr("server.args", nil),
		Env:         c.getStringMapOr("server.env"),
		WorkDir:     c.getStringOr("server.workDir", ""),
		WaitForExit: c.getBoolOr("server.waitForExit", true),
		ExitTimeout: c.getDurationOr("server.exitTimeout", 5*time.Second),
		ChunkSize:   c.getIntOr("server.chunkSize", 4096),
	}
}

// Document returns the document section.
func (c *Config) Document() DocumentConfig {
	return DocumentConfig{
		LanguageID: c.getStringOr("document.languageId", ""),
	}
}

// Completion returns the completion section.
func (c *Config) Completion() CompletionConfig {
	return CompletionConfig{
		MaxSuggestions: c.getIntOr("completion.maxSuggestions", 13),
		HookScript:     c.getStringOr("completion.hookScript", ""),
	}
}

// Protocol returns the protocol section.
func (c *Config) Protocol() ProtocolConfig {
	return ProtocolConfig{
		Correlation: c.getStringOr("protocol.correlation", "sequential"),
	}
}

// Logging returns the logging section.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level:  c.getStringOr("logging.level", "info"),
		Format: c.getStringOr("logging.format", "text"),
		File:   c.getStringOr("logging.file", ""),
	}
}

// Watch returns the watch section.
func (c *Config) Watch() WatchConfig {
	return WatchConfig{
		Enabled:  c.getBoolOr("watch.enabled", false),
		Debounce: c.getDurationOr("watch.debounce", 100*time.Millisecond),
	}
}

// These methods only return the default for ErrSettingNotFound.
// Type errors are recorded and return the default to avoid breaking callers,
// but indicate a configuration problem that should be fixed.

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		c.recordConfigError(path, err)
		return defaultValue
	}
	return v
}

func (c *Config) getIntOr(path string, defaultValue int) int {
	v, err := c.GetInt(path)
	if err != nil {
		c.recordConfigError(path, err)
		return defaultValue
	}
	return v
}

func (c *Config) getBoolOr(path string, defaultValue bool) bool {
	v, err := c.GetBool(path)
	if err != nil {
		c.recordConfigError(path, err)
		return defaultValue
	}
	return v
}

func (c *Config) getDurationOr(path string, defaultValue time.Duration) time.Duration {
	v, err := c.GetDuration(path)
	if err != nil {
		c.recordConfigError(path, err)
		return defaultValue
	}
	return v
}

func (c *Config) getStringSliceOr(path string, defaultValue []string) []string {
	v, err := c.GetStringSlice(path)
	if err != nil {
		c.recordConfigError(path, err)
		return append([]string(nil), defaultValue...)
	}
	return v
}

func (c *Config) getStringMapOr(path string) map[string]string {
	v, err := c.GetStringMap(path)
	if err != nil {
		c.recordConfigError(path, err)
		return nil
	}
	return v
}

// recordConfigError stores the first type error for each path.
func (c *Config) recordConfigError(path string, err error) {
	if errors.Is(err, ErrSettingNotFound) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// ConfigErrors returns any configuration errors encountered during access.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	return maps.Clone(c.configErrors)
}

// Validate reads every section and returns the type errors found, joined.
func (c *Config) Validate() error {
	c.Server()
	c.Document()
	c.Completion()
	c.Protocol()
	c.Logging()
	c.Watch()

	errs := c.ConfigErrors()
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, 0, len(errs))
	for _, err := range errs {
		joined = append(joined, err)
	}
	return errors.Join(joined...)
}
