package obfuscator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	"lua-obfuscator/lua"
)

func TestAntiTamperGuardPassesCleanEnvironment(t *testing.T) {
	chunk := applyTransform(t, NewAntiTamperPass(), nil, `done = true`, testPipelineConfig(31))

	// 守卫块在最前面
	require.Greater(t, len(chunk.Block.Stmts), 1)
	_, isDo := chunk.Block.Stmts[0].(*lua.DoStmt)
	assert.True(t, isDo)

	out := lua.Print(chunk, false)
	require.NotContains(t, out, "\n")

	// 未被篡改的环境里守卫必须静默通过
	L := glua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(out))
	assert.Equal(t, glua.LTrue, L.GetGlobal("done"))
}

func TestAntiTamperSkippedWhenPretty(t *testing.T) {
	pcfg := testPipelineConfig(32)
	pcfg.PrettyPrint = true

	pass := NewAntiTamperPass()
	require.NoError(t, pass.Configure(nil))
	chunk, err := lua.Parse(`done = true`, "test")
	require.NoError(t, err)

	out, err := pass.Apply(chunk, pcfg)
	require.NoError(t, err)
	assert.Len(t, out.Block.Stmts, 1)
}

func TestAntiTamperGuardReparses(t *testing.T) {
	// 守卫模板必须是我们自己的解析器能接受的源代码
	chunk := applyTransform(t, NewAntiTamperPass(), nil, `done = true`, testPipelineConfig(33))
	printed := lua.Print(chunk, false)
	_, err := lua.Parse(printed, "reprint")
	assert.NoError(t, err)
}

func TestAntiTamperRejectsUnknownSettings(t *testing.T) {
	err := NewAntiTamperPass().Configure(map[string]interface{}{"Level": 1})
	assert.Error(t, err)
}
