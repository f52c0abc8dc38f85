package obfuscator

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	glua "github.com/yuin/gopher-lua"

	"lua-obfuscator/lua"
)

// testPipelineConfig 固定种子的管线上下文
func testPipelineConfig(seed int64) *PipelineConfig {
	return &PipelineConfig{
		Rng:   rand.New(rand.NewSource(seed)),
		Log:   commonlog.GetLogger("test"),
		Stats: &Statistics{},
	}
}

// applyTransform 配置单个变换并作用到解析后的源代码上
func applyTransform(t *testing.T, tr Transform, settings map[string]interface{}, src string, pcfg *PipelineConfig) *lua.Chunk {
	t.Helper()
	require.NoError(t, tr.Configure(settings))
	chunk, err := lua.Parse(src, "test")
	require.NoError(t, err)
	out, err := tr.Apply(chunk, pcfg)
	require.NoError(t, err)
	return out
}

// runChunk 压缩打印后在 Lua 5.1 虚拟机里执行
func runChunk(t *testing.T, chunk *lua.Chunk) *glua.LState {
	t.Helper()
	out := lua.Print(chunk, false)
	require.NotContains(t, out, "\n")
	return runSource(t, out)
}

func runSource(t *testing.T, src string) *glua.LState {
	t.Helper()
	L := glua.NewState()
	t.Cleanup(L.Close)
	require.NoError(t, L.DoString(src), "输出无法执行:\n%s", src)
	return L
}

func globalNumber(t *testing.T, L *glua.LState, name string) float64 {
	t.Helper()
	n, ok := L.GetGlobal(name).(glua.LNumber)
	require.True(t, ok, "全局 %s 不是数字", name)
	return float64(n)
}

func globalString(t *testing.T, L *glua.LState, name string) string {
	t.Helper()
	s, ok := L.GetGlobal(name).(glua.LString)
	require.True(t, ok, "全局 %s 不是字符串", name)
	return string(s)
}

const endToEndSource = `
local function factorial(n)
	if n <= 1 then
		return 1
	end
	return n * factorial(n - 1)
end

local parts = {}
for i = 1, 5 do
	parts[#parts + 1] = "item" .. i
end

local greeting = "hello, " .. "world"

result = factorial(10) + #parts * 100
message = greeting .. " (" .. parts[1] .. ")"
`

func TestObfuscateSourceEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	obf, err := New(cfg)
	require.NoError(t, err)

	out, err := obf.ObfuscateSource(endToEndSource, "e2e.lua")
	require.NoError(t, err)
	assert.NotContains(t, out, "\n")

	// 混淆后的程序必须与原始程序产生一致的结果
	orig := runSource(t, endToEndSource)
	got := runSource(t, out)
	assert.Equal(t, globalNumber(t, orig, "result"), globalNumber(t, got, "result"))
	assert.Equal(t, globalString(t, orig, "message"), globalString(t, got, "message"))

	stats := obf.GetStatistics()
	assert.Greater(t, stats.ConstantsExtracted, 0)
	assert.Greater(t, stats.StringsEncrypted, 0)
	assert.Greater(t, stats.NumbersExpanded, 0)
	assert.Greater(t, stats.VariablesRenamed, 0)
	assert.Equal(t, 12, stats.DecoysInjected)
}

func TestDifferentSeedsDifferentOutput(t *testing.T) {
	outs := make([]string, 2)
	for i, seed := range []int64{7, 8} {
		cfg := DefaultConfig()
		cfg.Seed = seed
		obf, err := New(cfg)
		require.NoError(t, err)
		outs[i], err = obf.ObfuscateSource(endToEndSource, "seed.lua")
		require.NoError(t, err)
	}
	assert.NotEqual(t, outs[0], outs[1])
}

func TestSameSeedSameOutput(t *testing.T) {
	outs := make([]string, 2)
	for i := range outs {
		cfg := DefaultConfig()
		cfg.Seed = 99
		obf, err := New(cfg)
		require.NoError(t, err)
		var err2 error
		outs[i], err2 = obf.ObfuscateSource(endToEndSource, "seed.lua")
		require.NoError(t, err2)
	}
	assert.Equal(t, outs[0], outs[1])
}

func TestNewRejectsBadSettingsBeforeParsing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passes = []PassConfig{
		{Name: "constant_array", Settings: map[string]interface{}{"ShardCount": 9}},
	}
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ShardCount")
}

func TestNewRejectsUnknownPass(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Passes = []PassConfig{{Name: "no_such_pass"}}
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_pass")
}

func TestTransformNames(t *testing.T) {
	names := TransformNames()
	assert.Equal(t, []string{"antitamper", "constant_array", "numbers", "rename", "string_encryption"}, names)
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obf.yaml")

	cfg := DefaultConfig()
	cfg.Seed = 1234
	cfg.PrettyPrint = true
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), loaded.Seed)
	assert.True(t, loaded.PrettyPrint)
	require.Len(t, loaded.Passes, len(cfg.Passes))
	for i := range cfg.Passes {
		assert.Equal(t, cfg.Passes[i].Name, loaded.Passes[i].Name)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
