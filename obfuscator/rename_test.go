package obfuscator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lua-obfuscator/lua"
)

const renameSource = `
local total = 0

local function accumulate(n)
	if n <= 0 then
		return 0
	end
	return n + accumulate(n - 1)
end

for i = 1, 3 do
	local total = i * 10
	if total > 10 then
		break
	end
end

repeat
	local finished = total >= 0
until finished

local holder = { field1 = 7 }
function holder.update(delta)
	holder.field1 = holder.field1 + delta
end
function holder:bump()
	self.field1 = self.field1 + 1
end
holder.update(2)
holder:bump()

total = accumulate(10)
result = total + holder.field1
`

func TestRenamePreservesBehavior(t *testing.T) {
	pcfg := testPipelineConfig(41)
	chunk := applyTransform(t, NewVariableRenamePass(), nil, renameSource, pcfg)

	assert.Greater(t, pcfg.Stats.VariablesRenamed, 5)

	out := lua.Print(chunk, false)
	// 局部名消失，全局名和表字段保留
	assert.NotContains(t, out, "total")
	assert.NotContains(t, out, "accumulate")
	assert.NotContains(t, out, "finished")
	assert.Contains(t, out, "result")
	assert.Contains(t, out, "field1")
	assert.Contains(t, out, "self")

	orig := runSource(t, renameSource)
	got := runSource(t, out)
	assert.Equal(t, globalNumber(t, orig, "result"), globalNumber(t, got, "result"))
}

func TestRenameShadowing(t *testing.T) {
	src := `
local x = 1
do
	local x = 2
	inner = x
end
outer = x
`
	chunk := applyTransform(t, NewVariableRenamePass(), nil, src, testPipelineConfig(42))
	L := runChunk(t, chunk)
	assert.Equal(t, float64(2), globalNumber(t, L, "inner"))
	assert.Equal(t, float64(1), globalNumber(t, L, "outer"))
}

func TestRenameLocalInitSeesOuterBinding(t *testing.T) {
	// local x = x 右侧引用的是外层绑定
	src := `
local x = 5
do
	local x = x + 1
	inner = x
end
`
	chunk := applyTransform(t, NewVariableRenamePass(), nil, src, testPipelineConfig(43))
	L := runChunk(t, chunk)
	assert.Equal(t, float64(6), globalNumber(t, L, "inner"))
}

func TestRenameGlobalsUntouched(t *testing.T) {
	src := `value = string.rep("x", 3) count = #value`
	chunk := applyTransform(t, NewVariableRenamePass(), nil, src, testPipelineConfig(44))

	out := lua.Print(chunk, false)
	assert.Contains(t, out, "string")
	assert.Contains(t, out, "rep")

	L := runSource(t, out)
	assert.Equal(t, float64(3), globalNumber(t, L, "count"))
}

func TestRenameUpvalueCapture(t *testing.T) {
	src := `
local base = 100
local function make()
	return function(n)
		return base + n
	end
end
result = make()(1)
`
	chunk := applyTransform(t, NewVariableRenamePass(), nil, src, testPipelineConfig(45))
	L := runChunk(t, chunk)
	assert.Equal(t, float64(101), globalNumber(t, L, "result"))
}

func TestRenameVarargForwarded(t *testing.T) {
	src := `
local function pick(...)
	local first = ...
	return first
end
result = pick(9, 8)
`
	chunk := applyTransform(t, NewVariableRenamePass(), nil, src, testPipelineConfig(46))
	L := runChunk(t, chunk)
	require.Equal(t, float64(9), globalNumber(t, L, "result"))
}
