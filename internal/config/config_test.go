package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dshills/baton/internal/config/loader"
)

// memFS serves config files from memory.
type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

// newTestConfig creates a config without search paths or environment.
func newTestConfig(opts ...Option) *Config {
	return New(append([]Option{WithSearchPaths(), WithEnvPrefix("")}, opts...)...)
}

func TestNew_Defaults(t *testing.T) {
	c := newTestConfig()
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := ServerConfig{
		Command:     "clangd",
		Args:        []string{},
		WaitForExit: true,
		ExitTimeout: 5 * time.Second,
		ChunkSize:   4096,
	}
	if got := c.Server(); !reflect.DeepEqual(got, want) {
		t.Errorf("Server() = %+v, want %+v", got, want)
	}
	if got := c.Completion(); got.MaxSuggestions != 13 || got.HookScript != "" {
		t.Errorf("Completion() = %+v", got)
	}
	if got := c.Protocol().Correlation; got != "sequential" {
		t.Errorf("Protocol().Correlation = %q", got)
	}
	if got := c.Logging(); got.Level != "info" || got.Format != "text" {
		t.Errorf("Logging() = %+v", got)
	}
	if got := c.Watch(); got.Enabled || got.Debounce != 100*time.Millisecond {
		t.Errorf("Watch() = %+v", got)
	}
	if c.File() != "" {
		t.Errorf("File() = %q, want none", c.File())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfig_LoadFile(t *testing.T) {
	files := memFS{
		"baton.toml": `
[server]
command = "ccls"
args = ["--log-file=/tmp/ccls.log"]
exitTimeout = "1s"

[server.env]
CCLS_TRACE = "1"

[completion]
maxSuggestions = 5
`,
		"baton.yaml": `
server:
  command: clangd-17
  workDir: /src
watch:
  enabled: true
  debounce: 250
`,
	}

	tests := []struct {
		name string
		file string
		want ServerConfig
	}{
		{
			name: "toml",
			file: "baton.toml",
			want: ServerConfig{
				Command:     "ccls",
				Args:        []string{"--log-file=/tmp/ccls.log"},
				Env:         map[string]string{"CCLS_TRACE": "1"},
				WaitForExit: true,
				ExitTimeout: time.Second,
				ChunkSize:   4096,
			},
		},
		{
			name: "yaml",
			file: "baton.yaml",
			want: ServerConfig{
				Command:     "clangd-17",
				Args:        []string{},
				WorkDir:     "/src",
				WaitForExit: true,
				ExitTimeout: 5 * time.Second,
				ChunkSize:   4096,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConfig(WithFileSystem(files), WithFile(tt.file))
			if err := c.Load(context.Background()); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got := c.Server(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Server() = %+v\nwant %+v", got, tt.want)
			}
			if c.File() != tt.file {
				t.Errorf("File() = %q", c.File())
			}
		})
	}

	c := newTestConfig(WithFileSystem(files), WithFile("baton.yaml"))
	if err := c.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Watch(); !got.Enabled || got.Debounce != 250*time.Millisecond {
		t.Errorf("Watch() = %+v", got)
	}
}

func TestConfig_LoadMissingExplicitFile(t *testing.T) {
	c := newTestConfig(WithFileSystem(memFS{}), WithFile("nope.toml"))
	if err := c.Load(context.Background()); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load() error = %v, want ErrFileNotFound", err)
	}
}

func TestConfig_LoadParseError(t *testing.T) {
	c := newTestConfig(WithFileSystem(memFS{"bad.toml": "[server"}), WithFile("bad.toml"))
	var perr *loader.ParseError
	if err := c.Load(context.Background()); !errors.As(err, &perr) {
		t.Errorf("Load() error = %v, want *loader.ParseError", err)
	}
}

func TestConfig_SearchPaths(t *testing.T) {
	files := memFS{"second.yaml": "logging:\n  level: debug\n"}
	c := newTestConfig(WithFileSystem(files), WithSearchPaths("first.toml", "second.yaml", "third.toml"))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.File() != "second.yaml" {
		t.Errorf("File() = %q, want second.yaml", c.File())
	}
	if got := c.Logging().Level; got != "debug" {
		t.Errorf("Logging().Level = %q", got)
	}
}

func TestConfig_RealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baton.toml")
	if err := os.WriteFile(path, []byte("[protocol]\ncorrelation = \"method\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := newTestConfig(WithFile(path))
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := c.Protocol().Correlation; got != "method" {
		t.Errorf("Protocol().Correlation = %q", got)
	}
}

func TestConfig_Layering(t *testing.T) {
	t.Setenv("BATON_SERVER_COMMAND", "env-clangd")
	t.Setenv("BATON_LOG_LEVEL", "warn")

	files := memFS{"baton.toml": `
[server]
command = "file-clangd"
workDir = "/file"

[logging]
level = "debug"
format = "json"
`}
	c := New(WithFileSystem(files), WithFile("baton.toml"))
	if err := c.Set("logging.level", "error"); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		path   string
		want   string
		source Source
	}{
		{"server.command", "env-clangd", SourceEnv},
		{"server.workDir", "/file", SourceFile},
		{"logging.level", "error", SourceArgs},
		{"logging.format", "json", SourceFile},
		{"protocol.correlation", "sequential", SourceBuiltin},
	}
	for _, tt := range tests {
		got, err := c.GetString(tt.path)
		if err != nil || got != tt.want {
			t.Errorf("GetString(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
		if src, ok := c.Source(tt.path); !ok || src != tt.source {
			t.Errorf("Source(%q) = %v, want %v", tt.path, src, tt.source)
		}
	}
	if _, ok := c.Source("no.such.path"); ok {
		t.Error("Source() found a missing path")
	}
}

func TestConfig_EnvironmentScalars(t *testing.T) {
	t.Setenv("BATON_LOG_LEVEL", "off")
	t.Setenv("BATON_SERVER_COMMAND", "1")
	t.Setenv("BATON_LOG_FORMAT", "yes")
	t.Setenv("BATON_MAX_SUGGESTIONS", "5")
	t.Setenv("BATON_WATCH_ENABLED", "on")
	t.Setenv("BATON_WATCH_DEBOUNCE", "250")
	t.Setenv("BATON_SERVER_EXIT_TIMEOUT", "2s")
	t.Setenv("BATON_SERVER_WAIT_FOR_EXIT", "0")

	c := New(WithSearchPaths())
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	if got := c.Logging(); got.Level != "off" || got.Format != "yes" {
		t.Errorf("Logging() = %+v", got)
	}
	server := c.Server()
	if server.Command != "1" || server.ExitTimeout != 2*time.Second || server.WaitForExit {
		t.Errorf("Server() = %+v", server)
	}
	if got := c.Completion().MaxSuggestions; got != 5 {
		t.Errorf("MaxSuggestions = %d, want 5", got)
	}
	if got := c.Watch(); !got.Enabled || got.Debounce != 250*time.Millisecond {
		t.Errorf("Watch() = %+v", got)
	}
}

func TestConfig_Set(t *testing.T) {
	c := newTestConfig()
	if err := c.Set("completion.maxSuggestions", 3); err != nil {
		t.Fatal(err)
	}
	if got := c.Completion().MaxSuggestions; got != 3 {
		t.Errorf("MaxSuggestions = %d, want 3", got)
	}
	if err := c.Set("", 1); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Set(\"\") error = %v", err)
	}
	if err := c.Set("completion.maxSuggestions.x", 1); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Set() through a scalar error = %v", err)
	}

	// Merged returns a copy.
	m := c.Merged()
	m["completion"].(map[string]any)["maxSuggestions"] = 99
	if got := c.Completion().MaxSuggestions; got != 3 {
		t.Errorf("Merged() exposed internal state: %d", got)
	}
}

func TestConfig_Getters(t *testing.T) {
	c := newTestConfig()
	_ = c.Set("values.str", "x")
	_ = c.Set("values.num", int64(7))
	_ = c.Set("values.float", 2.0)
	_ = c.Set("values.dur", 3*time.Second)
	_ = c.Set("values.ms", int64(20))
	_ = c.Set("values.badDur", "soon")
	_ = c.Set("values.words", "--a --b")
	_ = c.Set("values.mixed", []any{"a", int64(1)})

	if n, err := c.GetInt("values.num"); err != nil || n != 7 {
		t.Errorf("GetInt(num) = %d, %v", n, err)
	}
	if n, err := c.GetInt("values.float"); err != nil || n != 2 {
		t.Errorf("GetInt(float) = %d, %v", n, err)
	}
	if d, err := c.GetDuration("values.dur"); err != nil || d != 3*time.Second {
		t.Errorf("GetDuration(dur) = %v, %v", d, err)
	}
	if d, err := c.GetDuration("values.ms"); err != nil || d != 20*time.Millisecond {
		t.Errorf("GetDuration(ms) = %v, %v", d, err)
	}
	if _, err := c.GetDuration("values.badDur"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetDuration(badDur) error = %v", err)
	}
	if s, err := c.GetStringSlice("values.words"); err != nil || !reflect.DeepEqual(s, []string{"--a", "--b"}) {
		t.Errorf("GetStringSlice(words) = %v, %v", s, err)
	}
	if _, err := c.GetStringSlice("values.mixed"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetStringSlice(mixed) error = %v", err)
	}
	if _, err := c.GetBool("values.str"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetBool(str) error = %v", err)
	}
	if _, err := c.GetString("values.none"); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("GetString(none) error = %v", err)
	}
}

func TestConfig_TypeErrorsFallBackToDefaults(t *testing.T) {
	c := newTestConfig(WithFileSystem(memFS{"baton.toml": `
[completion]
maxSuggestions = "lots"

[watch]
enabled = "sometimes"
`}), WithFile("baton.toml"))
	if err := c.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := c.Completion().MaxSuggestions; got != 13 {
		t.Errorf("MaxSuggestions = %d, want default 13", got)
	}
	err := c.Validate()
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("Validate() = %v, want type mismatch", err)
	}
	errs := c.ConfigErrors()
	if _, ok := errs["completion.maxSuggestions"]; !ok {
		t.Errorf("ConfigErrors() = %v", errs)
	}
	if _, ok := errs["watch.enabled"]; !ok {
		t.Errorf("ConfigErrors() = %v", errs)
	}
}

func TestSource_String(t *testing.T) {
	tests := []struct {
		s    Source
		want string
	}{
		{SourceBuiltin, "builtin"},
		{SourceFile, "file"},
		{SourceEnv, "environment"},
		{SourceArgs, "arguments"},
		{Source(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Source(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
