// Package config provides baton's layered configuration.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority (Config.Set)
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← BATON_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← baton.toml / baton.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Settings are addressed by dotted paths such as "server.command". Typed
// section accessors (Server, Document, Completion, Protocol, Logging and
// Watch) return snapshot structs with defaults filled in.
//
// # Basic Usage
//
//	cfg := config.New(config.WithFile("baton.toml"))
//	if err := cfg.Load(ctx); err != nil {
//	    return err
//	}
//	srv := cfg.Server()
//	fmt.Println(srv.Command, srv.Args)
//
// # Environment Variables
//
// Variables are mapped by section and setting name, BATON_SERVER_WORK_DIR
// becoming server.workDir. A few short forms are recognized as well:
//
//	BATON_LOG_LEVEL        logging.level
//	BATON_LOG_FORMAT       logging.format
//	BATON_SERVER           server.command
//	BATON_MAX_SUGGESTIONS  completion.maxSuggestions
//	BATON_HOOK_SCRIPT      completion.hookScript
//	BATON_CORRELATION      protocol.correlation
//
// Values stay strings until a typed getter reads them, so BATON_LOG_LEVEL=off
// is the level "off" while BATON_WATCH_ENABLED=off is false. JSON arrays and
// objects are decoded when loaded.
//
// # Thread Safety
//
// All Config methods are safe for concurrent use.
package config
