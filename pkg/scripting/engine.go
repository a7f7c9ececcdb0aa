// Package scripting provides Lua hook points for customizing assistant
// behavior: normalizing discovered topics, filtering researched facts, and
// rewriting answers before they are returned.
package scripting

import "context"

// Engine is the interface for the Lua scripting engine.
type Engine interface {
	// LoadScript loads a Lua script with the given name and content.
	LoadScript(name string, content []byte) error

	// LoadScriptFile loads a Lua script from a file path.
	LoadScriptFile(path string) error

	// LoadScriptDir loads all Lua scripts from a directory.
	LoadScriptDir(dir string) error

	// ExecuteFunction calls a Lua function with the given arguments.
	// The function should be previously loaded via LoadScript or LoadScriptFile.
	ExecuteFunction(ctx context.Context, funcName string, args ...interface{}) (interface{}, error)

	// HasFunction reports whether a global function is defined.
	HasFunction(funcName string) bool

	// Close releases resources associated with the engine.
	Close() error
}

// Config contains configuration options for the scripting engine.
type Config struct {
	// EnableSandboxing restricts access to potentially dangerous Lua modules like os and io
	EnableSandboxing bool

	// ScriptTimeoutMs sets a maximum execution time for scripts in milliseconds
	ScriptTimeoutMs int
}

// DefaultConfig returns the default configuration for the scripting engine.
func DefaultConfig() Config {
	return Config{
		EnableSandboxing: true,
		ScriptTimeoutMs:  1000,
	}
}

// Hook function names the assistant looks for in loaded scripts.
const (
	// HookNormalizeTopic receives a discovered topic string and returns the
	// topic to count, or an empty string to drop it.
	HookNormalizeTopic = "normalize_topic"

	// HookFilterFact receives a candidate fact string and returns a boolean;
	// false excludes the fact from merge-back.
	HookFilterFact = "filter_fact"

	// HookBeforeAnswer receives the query and the answer text and returns
	// the (possibly rewritten) answer text.
	HookBeforeAnswer = "before_answer"
)
