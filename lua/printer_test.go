package lua

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"
)

// evalMinified 压缩打印后在虚拟机里执行并取回全局 x
func evalMinified(t *testing.T, src string) glua.LValue {
	t.Helper()
	chunk, err := Parse(src, "eval")
	require.NoError(t, err)
	out := Print(chunk, false)
	require.NotContains(t, out, "\n")

	L := glua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(out))
	return L.GetGlobal("x")
}

func TestNumberConcatSpacing(t *testing.T) {
	// 数字后面紧跟 .. 会被词法器吞成小数点
	v := evalMinified(t, "x = 1 .. 2")
	assert.Equal(t, "12", glua.LVAsString(v))
}

func TestUnaryMinusSpacing(t *testing.T) {
	v := evalMinified(t, "x = 1 - -2")
	assert.Equal(t, float64(3), float64(v.(glua.LNumber)))
}

func TestMultipleReturnTruncation(t *testing.T) {
	// (f()) 截断多返回值，括号必须保留
	v := evalMinified(t, `
local function two()
	return 1, 2
end
x = select("#", (two()))
`)
	assert.Equal(t, float64(1), float64(v.(glua.LNumber)))
}

func TestStringQuoting(t *testing.T) {
	assert.Equal(t, `"abc"`, quoteString("abc"))
	assert.Equal(t, `"a\010b"`, quoteString("a\nb"))
	assert.Equal(t, `"\000\255"`, quoteString("\x00\xff"))
	assert.Equal(t, `"say \"hi\""`, quoteString(`say "hi"`))
	assert.Equal(t, `"back\\slash"`, quoteString(`back\slash`))
}

func TestQuotedBytesRoundTrip(t *testing.T) {
	raw := make([]byte, 256)
	for i := range raw {
		raw[i] = byte(i)
	}
	chunk := &Chunk{
		Block: &Block{Stmts: []Stmt{
			&AssignStmt{
				Targets: []Expr{NewName("x")},
				Exprs:   []Expr{NewString(string(raw))},
			},
		}},
		Scope: NewRootScope(),
	}
	out := Print(chunk, false)
	require.NotContains(t, out, "\n")

	L := glua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(out))
	assert.Equal(t, string(raw), glua.LVAsString(L.GetGlobal("x")))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "10", FormatNumber(10))
	assert.Equal(t, "3.5", FormatNumber(3.5))
	assert.Equal(t, "1e+20", FormatNumber(1e20))
}

func TestParseNumber(t *testing.T) {
	v, err := ParseNumber("0x1F")
	require.NoError(t, err)
	assert.Equal(t, float64(31), v)

	v, err = ParseNumber("2.5e2")
	require.NoError(t, err)
	assert.Equal(t, float64(250), v)

	_, err = ParseNumber("abc")
	assert.Error(t, err)
}

func TestPrettyOutputIndents(t *testing.T) {
	chunk, err := Parse("if x then y = 1 else y = 2 end", "pretty")
	require.NoError(t, err)
	out := Print(chunk, true)
	lines := strings.Split(out, "\n")
	assert.Greater(t, len(lines), 3)
	assert.Contains(t, out, "\t")
}
