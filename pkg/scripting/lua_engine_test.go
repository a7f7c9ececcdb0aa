package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/errors"
)

func newEngine(t *testing.T) *LuaEngine {
	t.Helper()
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestLoadAndExecute(t *testing.T) {
	engine := newEngine(t)

	script := `
function normalize_topic(topic)
    return string.gsub(topic, "please ", "")
end
`
	require.NoError(t, engine.LoadScript("hooks.lua", []byte(script)))
	require.True(t, engine.HasFunction("normalize_topic"))

	out, err := engine.ExecuteFunction(context.Background(), "normalize_topic", "please docker")
	require.NoError(t, err)
	assert.Equal(t, "docker", out)
}

func TestExecuteMissingFunction(t *testing.T) {
	engine := newEngine(t)

	_, err := engine.ExecuteFunction(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.False(t, engine.HasFunction("nope"))
}

func TestBooleanReturn(t *testing.T) {
	engine := newEngine(t)

	script := `
function filter_fact(fact)
    return string.len(fact) > 10
end
`
	require.NoError(t, engine.LoadScript("filter.lua", []byte(script)))

	out, err := engine.ExecuteFunction(context.Background(), "filter_fact", "short")
	require.NoError(t, err)
	assert.Equal(t, false, out)

	out, err = engine.ExecuteFunction(context.Background(), "filter_fact", "a fact long enough to keep")
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCompileErrorSurfaces(t *testing.T) {
	engine := newEngine(t)
	err := engine.LoadScript("broken.lua", []byte("function ("))
	assert.ErrorIs(t, err, errors.ErrLuaExecution)
}

func TestSandboxBlocksOS(t *testing.T) {
	engine := newEngine(t)

	script := `
function try_os()
    if os == nil then
        return "blocked"
    end
    return "open"
end
`
	require.NoError(t, engine.LoadScript("sandbox.lua", []byte(script)))

	out, err := engine.ExecuteFunction(context.Background(), "try_os")
	require.NoError(t, err)
	assert.Equal(t, "blocked", out)
}

func TestHostAPI(t *testing.T) {
	engine := newEngine(t)

	script := `
function roundtrip()
    local encoded = echomind.json_encode({topic = "docker", count = 2})
    local decoded = echomind.json_decode(encoded)
    return decoded.topic
end
`
	require.NoError(t, engine.LoadScript("api.lua", []byte(script)))

	out, err := engine.ExecuteFunction(context.Background(), "roundtrip")
	require.NoError(t, err)
	assert.Equal(t, "docker", out)
}

func TestLoadScriptDir(t *testing.T) {
	dir := t.TempDir()
	script := []byte(`function from_dir() return 42 end`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks.lua"), script, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	engine := newEngine(t)
	require.NoError(t, engine.LoadScriptDir(dir))

	out, err := engine.ExecuteFunction(context.Background(), "from_dir")
	require.NoError(t, err)
	assert.Equal(t, float64(42), out)
}

func TestClosedEngineRejectsWork(t *testing.T) {
	engine, err := NewLuaEngine(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())

	assert.Error(t, engine.LoadScript("x.lua", []byte("a = 1")))
	_, err = engine.ExecuteFunction(context.Background(), "anything")
	assert.Error(t, err)
}
