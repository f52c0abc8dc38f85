package obfuscator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lua-obfuscator/lua"
)

func TestNumbersExpandPreservesValue(t *testing.T) {
	values := []float64{0, 1, 2, 7, 10, 255, 1000, 65535, 1000000, 0.25, 3.5, 0.1}
	for i, v := range values {
		src := fmt.Sprintf("x = %s", lua.FormatNumber(v))
		chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
			"Treshold":         1,
			"InternalTreshold": 1,
			"MaxDepth":         3,
		}, src, testPipelineConfig(int64(100+i)))

		// 每个生成器都经过回代校验，结果必须逐位精确
		L := runChunk(t, chunk)
		assert.Equal(t, v, globalNumber(t, L, "x"), "值 %v 展开后改变", v)
	}
}

func TestNumbersNegativeLiteral(t *testing.T) {
	chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
		"Treshold": 1,
		"MaxDepth": 2,
	}, "x = -42", testPipelineConfig(9))

	L := runChunk(t, chunk)
	assert.Equal(t, float64(-42), globalNumber(t, L, "x"))
}

func TestNumbersStatsCounted(t *testing.T) {
	pcfg := testPipelineConfig(10)
	chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
		"Treshold": 1,
		"MaxDepth": 1,
	}, "x = 10", pcfg)

	assert.Equal(t, 1, pcfg.Stats.NumbersExpanded)
	L := runChunk(t, chunk)
	assert.Equal(t, float64(10), globalNumber(t, L, "x"))
}

func TestNumbersZeroTresholdUnchanged(t *testing.T) {
	src := "x = 10 + 20 * 3"
	chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
		"Treshold": 0,
	}, src, testPipelineConfig(11))

	fresh, err := lua.Parse(src, "fresh")
	require.NoError(t, err)
	assert.Equal(t, lua.Print(fresh, false), lua.Print(chunk, false))
}

func TestNumbersExpandedFormIsNotALiteral(t *testing.T) {
	pcfg := testPipelineConfig(12)
	chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
		"Treshold": 1,
		"MaxDepth": 3,
	}, "x = 100", pcfg)

	assign := chunk.Block.Stmts[0].(*lua.AssignStmt)
	_, isLiteral := assign.Exprs[0].(*lua.NumberExpr)
	assert.False(t, isLiteral)
	assert.Equal(t, 1, pcfg.Stats.NumbersExpanded)

	L := runChunk(t, chunk)
	assert.Equal(t, float64(100), globalNumber(t, L, "x"))
}

func TestNumbersConfigBounds(t *testing.T) {
	cases := []map[string]interface{}{
		{"Treshold": 1.5},
		{"Treshold": -0.1},
		{"MaxDepth": 0},
		{"MaxDepth": 9},
		{"Depth": 3},
	}
	for _, settings := range cases {
		err := NewNumericExpansionPass().Configure(settings)
		assert.Error(t, err, "应当拒绝配置 %v", settings)
	}
}

func TestNumbersDeepExpansionStillExact(t *testing.T) {
	// 高深度、高内部概率，表达式树最深。多种子复核精确性
	for seed := int64(0); seed < 20; seed++ {
		chunk := applyTransform(t, NewNumericExpansionPass(), map[string]interface{}{
			"Treshold":         1,
			"InternalTreshold": 1,
			"MaxDepth":         8,
		}, "x = 12345", testPipelineConfig(seed))

		L := runChunk(t, chunk)
		assert.Equal(t, float64(12345), globalNumber(t, L, "x"), "种子 %d", seed)
	}
}
