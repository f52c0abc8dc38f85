package obfuscator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"

	"lua-obfuscator/lua"
)

func TestConstantArrayHelloEndToEnd(t *testing.T) {
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    1,
		"FakeConstants": 0,
	}, `x = "hello"`, testPipelineConfig(1))

	// 分片声明 + 解码块 + 原语句
	require.Len(t, chunk.Block.Stmts, 3)
	local, ok := chunk.Block.Stmts[0].(*lua.LocalStmt)
	require.True(t, ok)
	table, ok := local.Exprs[0].(*lua.TableExpr)
	require.True(t, ok)
	assert.Len(t, table.Fields, 1)

	// 引用处变成了下标访问
	assign := chunk.Block.Stmts[2].(*lua.AssignStmt)
	_, isIndex := assign.Exprs[0].(*lua.IndexExpr)
	assert.True(t, isIndex)

	L := runChunk(t, chunk)
	assert.Equal(t, "hello", globalString(t, L, "x"))
}

func TestConstantArrayShardPlacement(t *testing.T) {
	src := `
a = "s1" b = "s2" c = "s3" d = "s4" e = "s5" f = "s6" g = "s7"
`
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    3,
		"FakeConstants": 0,
	}, src, testPipelineConfig(2))

	// 7 个常量按 (index-1) % 3 落入分片，大小为 3, 2, 2
	sizes := make([]int, 3)
	for i := 0; i < 3; i++ {
		local, ok := chunk.Block.Stmts[i].(*lua.LocalStmt)
		require.True(t, ok)
		sizes[i] = len(local.Exprs[0].(*lua.TableExpr).Fields)
	}
	assert.Equal(t, []int{3, 2, 2}, sizes)

	L := runChunk(t, chunk)
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}[i], globalString(t, L, name))
	}
}

func TestConstantArrayDeduplication(t *testing.T) {
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    1,
		"FakeConstants": 0,
	}, `a = "dup" b = "dup"`, testPipelineConfig(3))

	local := chunk.Block.Stmts[0].(*lua.LocalStmt)
	assert.Len(t, local.Exprs[0].(*lua.TableExpr).Fields, 1)

	L := runChunk(t, chunk)
	assert.Equal(t, "dup", globalString(t, L, "a"))
	assert.Equal(t, "dup", globalString(t, L, "b"))
}

func TestConstantArrayDecoys(t *testing.T) {
	pcfg := testPipelineConfig(4)
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    2,
		"FakeConstants": 10,
	}, `x = "real"`, pcfg)

	assert.Equal(t, 10, pcfg.Stats.DecoysInjected)
	assert.Equal(t, 1, pcfg.Stats.ConstantsExtracted)

	total := 0
	for i := 0; i < 2; i++ {
		local := chunk.Block.Stmts[i].(*lua.LocalStmt)
		total += len(local.Exprs[0].(*lua.TableExpr).Fields)
	}
	assert.Equal(t, 11, total)

	L := runChunk(t, chunk)
	assert.Equal(t, "real", globalString(t, L, "x"))
}

func TestConstantArrayEmptyString(t *testing.T) {
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    1,
		"FakeConstants": 0,
	}, `x = "" .. "tail"`, testPipelineConfig(5))

	L := runChunk(t, chunk)
	assert.Equal(t, "tail", globalString(t, L, "x"))
}

func TestConstantArrayNoStrings(t *testing.T) {
	chunk := applyTransform(t, NewConstantExtractionPass(), nil, `x = 1`, testPipelineConfig(6))
	assert.Len(t, chunk.Block.Stmts, 1)
}

func TestConstantArrayStandardAlphabet(t *testing.T) {
	// Shuffle 关闭时用标准字符表，行为不变
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    1,
		"FakeConstants": 0,
		"Shuffle":       false,
	}, `x = "plain"`, testPipelineConfig(7))

	out := lua.Print(chunk, false)
	assert.Contains(t, out, stdBase64Alphabet)

	L := runChunk(t, chunk)
	assert.Equal(t, "plain", globalString(t, L, "x"))
}

func TestConstantArrayConfigBounds(t *testing.T) {
	cases := []map[string]interface{}{
		{"ShardCount": 0},
		{"ShardCount": 9},
		{"FakeConstants": 129},
		{"XorKey": 0},
		{"XorKey": 256},
		{"Encoding": "hex"},
	}
	for _, settings := range cases {
		err := NewConstantExtractionPass().Configure(settings)
		assert.Error(t, err, "应当拒绝配置 %v", settings)
	}
}

func TestConstantArrayBinaryData(t *testing.T) {
	// 含不可打印字节的字符串
	src := "x = \"\\000\\001\\255tail\""
	chunk := applyTransform(t, NewConstantExtractionPass(), map[string]interface{}{
		"ShardCount":    2,
		"FakeConstants": 3,
	}, src, testPipelineConfig(8))

	L := runChunk(t, chunk)
	v, ok := L.GetGlobal("x").(glua.LString)
	require.True(t, ok)
	assert.Equal(t, "\x00\x01\xfftail", string(v))
}
