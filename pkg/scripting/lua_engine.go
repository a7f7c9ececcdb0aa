package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/log"
)

// LuaEngine implements Engine on a single gopher-lua state. A mutex
// serializes all access: lua.LState is not safe for concurrent use.
type LuaEngine struct {
	mu     sync.Mutex
	state  *lua.LState
	config Config
	closed bool
}

// NewLuaEngine creates a Lua engine with the given configuration.
func NewLuaEngine(config Config) (*LuaEngine, error) {
	L := lua.NewState()

	if config.EnableSandboxing {
		setupSandbox(L)
	} else {
		L.OpenLibs()
	}
	registerAPIFunctions(L)

	if config.ScriptTimeoutMs <= 0 {
		config.ScriptTimeoutMs = DefaultConfig().ScriptTimeoutMs
	}

	return &LuaEngine{state: L, config: config}, nil
}

// LoadScript implements Engine.
func (e *LuaEngine) LoadScript(name string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.Wrap(errors.ErrLuaExecution, "engine is closed")
	}

	fn, err := e.state.Load(strings.NewReader(string(content)), name)
	if err != nil {
		return errors.Wrap(errors.ErrLuaExecution, "failed to compile script %q: %v", name, err)
	}
	e.state.Push(fn)
	if err := e.state.PCall(0, lua.MultRet, nil); err != nil {
		return errors.Wrap(errors.ErrLuaExecution, "failed to run script %q: %v", name, err)
	}

	log.Debug("Loaded Lua script", "name", name, "bytes", len(content))
	return nil
}

// LoadScriptFile implements Engine.
func (e *LuaEngine) LoadScriptFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}
	return e.LoadScript(filepath.Base(path), content)
}

// LoadScriptDir implements Engine. Only files with a .lua extension are
// loaded; the directory is not recursed.
func (e *LuaEngine) LoadScriptDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read script directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		if err := e.LoadScriptFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// HasFunction implements Engine.
func (e *LuaEngine) HasFunction(funcName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	_, ok := e.state.GetGlobal(funcName).(*lua.LFunction)
	return ok
}

// ExecuteFunction implements Engine. Execution is bounded by the configured
// script timeout and by ctx.
func (e *LuaEngine) ExecuteFunction(ctx context.Context, funcName string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.Wrap(errors.ErrLuaExecution, "engine is closed")
	}

	fn, ok := e.state.GetGlobal(funcName).(*lua.LFunction)
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Lua function %q is not defined", funcName)
	}

	timeout := time.Duration(e.config.ScriptTimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	e.state.SetContext(execCtx)
	defer e.state.RemoveContext()

	luaArgs := make([]lua.LValue, len(args))
	for i, arg := range args {
		luaArgs[i] = convertGoToLua(e.state, arg)
	}

	err := e.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, luaArgs...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLuaExecution, "function %q failed: %v", funcName, err)
	}

	ret := e.state.Get(-1)
	e.state.Pop(1)
	return convertLuaToGo(ret), nil
}

// Close implements Engine.
func (e *LuaEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.state.Close()
	return nil
}

// convertGoToLua converts a Go value into its Lua representation.
func convertGoToLua(L *lua.LState, value interface{}) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []string:
		table := L.NewTable()
		for _, item := range v {
			table.Append(lua.LString(item))
		}
		return table
	case map[string]interface{}:
		table := L.NewTable()
		for key, item := range v {
			table.RawSetString(key, convertGoToLua(L, item))
		}
		return table
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// convertLuaToGo converts a Lua value into its Go representation.
func convertLuaToGo(value lua.LValue) interface{} {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		result := make(map[string]interface{})
		v.ForEach(func(key, val lua.LValue) {
			result[key.String()] = convertLuaToGo(val)
		})
		return result
	default:
		return v.String()
	}
}
