package lua

import (
	"fmt"
	"strconv"
	"strings"
)

// Print 把语法树渲染回 Lua 源代码。
// pretty 为 false 时输出压缩为单行，语句之间以分号分隔；
// 为 true 时按块缩进输出
func Print(c *Chunk, pretty bool) string {
	p := &printer{pretty: pretty, last: '\n'}
	for _, s := range c.Block.Stmts {
		p.stmtLine(s)
	}
	return strings.TrimPrefix(p.b.String(), "\n")
}

type printer struct {
	b       strings.Builder
	pretty  bool
	depth   int
	last    byte
	lastNum bool
}

// tok 输出一个词法片段，必要时补一个空格避免相邻片段粘连
func (p *printer) tok(s string) {
	if s == "" {
		return
	}
	c := s[0]
	switch {
	case isNameChar(p.last) && isNameChar(c):
		p.b.WriteByte(' ')
	case p.last == '-' && c == '-':
		p.b.WriteByte(' ')
	case p.lastNum && c == '.':
		p.b.WriteByte(' ')
	}
	p.b.WriteString(s)
	p.last = s[len(s)-1]
	p.lastNum = false
}

func (p *printer) num(s string) {
	p.tok(s)
	p.lastNum = true
}

func (p *printer) newline() {
	if !p.pretty {
		return
	}
	p.b.WriteByte('\n')
	for i := 0; i < p.depth; i++ {
		p.b.WriteByte('\t')
	}
	p.last = '\n'
	p.lastNum = false
}

// stmtLine 输出一条语句及其分隔
func (p *printer) stmtLine(s Stmt) {
	p.newline()
	p.stmt(s)
	if !p.pretty {
		p.tok(";")
	}
}

func (p *printer) block(b *Block) {
	p.depth++
	for _, s := range b.Stmts {
		p.stmtLine(s)
	}
	p.depth--
}

// closing 输出块的收尾关键字（end、until、else、elseif）
func (p *printer) closing(kw string) {
	p.newline()
	p.tok(kw)
}

func (p *printer) stmt(s Stmt) {
	switch st := s.(type) {
	case *LocalStmt:
		p.tok("local")
		p.nameList(st.Names)
		if len(st.Exprs) > 0 {
			p.tok("=")
			p.exprList(st.Exprs)
		}
	case *AssignStmt:
		p.exprList(st.Targets)
		p.tok("=")
		p.exprList(st.Exprs)
	case *CallStmt:
		p.expr(st.Call)
	case *DoStmt:
		p.tok("do")
		p.block(st.Body)
		p.closing("end")
	case *WhileStmt:
		p.tok("while")
		p.expr(st.Cond)
		p.tok("do")
		p.block(st.Body)
		p.closing("end")
	case *RepeatStmt:
		p.tok("repeat")
		p.block(st.Body)
		p.closing("until")
		p.expr(st.Cond)
	case *IfStmt:
		p.tok("if")
		p.expr(st.Cond)
		p.tok("then")
		p.block(st.Then)
		for _, ei := range st.ElseIfs {
			p.closing("elseif")
			p.expr(ei.Cond)
			p.tok("then")
			p.block(ei.Body)
		}
		if st.Else != nil {
			p.closing("else")
			p.block(st.Else)
		}
		p.closing("end")
	case *NumericForStmt:
		p.tok("for")
		p.tok(st.Name)
		p.tok("=")
		p.expr(st.Start)
		p.tok(",")
		p.expr(st.Limit)
		if st.Step != nil {
			p.tok(",")
			p.expr(st.Step)
		}
		p.tok("do")
		p.block(st.Body)
		p.closing("end")
	case *GenericForStmt:
		p.tok("for")
		p.nameList(st.Names)
		p.tok("in")
		p.exprList(st.Exprs)
		p.tok("do")
		p.block(st.Body)
		p.closing("end")
	case *FunctionStmt:
		if st.IsLocal {
			p.tok("local")
		}
		p.tok("function")
		p.expr(st.Target)
		if st.Method != "" {
			p.tok(":")
			p.tok(st.Method)
		}
		p.funcRest(st.Func)
	case *ReturnStmt:
		p.tok("return")
		if len(st.Exprs) > 0 {
			p.exprList(st.Exprs)
		}
	case *BreakStmt:
		p.tok("break")
	}
}

func (p *printer) nameList(names []string) {
	for i, n := range names {
		if i > 0 {
			p.tok(",")
		}
		p.tok(n)
	}
}

func (p *printer) exprList(list []Expr) {
	for i, e := range list {
		if i > 0 {
			p.tok(",")
		}
		p.expr(e)
	}
}

// funcRest 输出 "function" 关键字之后的参数表和函数体
func (p *printer) funcRest(f *FuncExpr) {
	p.tok("(")
	p.nameList(f.Params)
	if f.IsVararg {
		if len(f.Params) > 0 {
			p.tok(",")
		}
		p.tok("...")
	}
	p.tok(")")
	p.block(f.Body)
	p.closing("end")
}

func (p *printer) expr(e Expr) {
	switch ex := e.(type) {
	case *NilExpr:
		p.tok("nil")
	case *TrueExpr:
		p.tok("true")
	case *FalseExpr:
		p.tok("false")
	case *VarargExpr:
		p.tok("...")
	case *NumberExpr:
		p.num(ex.Value)
	case *StringExpr:
		p.tok(quoteString(ex.Value))
	case *NameExpr:
		p.tok(ex.Name)
	case *IndexExpr:
		p.prefix(ex.Object)
		if ex.Dot {
			p.tok(".")
			p.tok(ex.Key.(*StringExpr).Value)
		} else {
			p.tok("[")
			p.expr(ex.Key)
			p.tok("]")
		}
	case *CallExpr:
		p.prefix(ex.Func)
		if ex.Method != "" {
			p.tok(":")
			p.tok(ex.Method)
		}
		p.tok("(")
		p.exprList(ex.Args)
		p.tok(")")
	case *FuncExpr:
		p.tok("function")
		p.funcRest(ex)
	case *TableExpr:
		p.tok("{")
		for i, f := range ex.Fields {
			if i > 0 {
				p.tok(",")
			}
			switch {
			case f.NameKey:
				p.tok(f.Key.(*StringExpr).Value)
				p.tok("=")
			case f.Key != nil:
				p.tok("[")
				p.expr(f.Key)
				p.tok("]")
				p.tok("=")
			}
			p.expr(f.Value)
		}
		p.tok("}")
	case *BinaryExpr:
		p.operand(ex.Lhs)
		p.tok(ex.Op)
		p.operand(ex.Rhs)
	case *UnaryExpr:
		p.tok(ex.Op)
		p.operand(ex.Operand)
	case *ParenExpr:
		p.tok("(")
		p.expr(ex.Inner)
		p.tok(")")
	}
}

// operand 输出运算数。一律加括号，既消除优先级问题也增加输出噪声
func (p *printer) operand(e Expr) {
	if _, ok := e.(*ParenExpr); ok {
		p.expr(e)
		return
	}
	p.tok("(")
	p.expr(e)
	p.tok(")")
}

// prefix 输出前缀表达式位置的节点。非前缀语法的节点必须包一层括号，
// 否则 function()end() 这类写法不是合法 Lua
func (p *printer) prefix(e Expr) {
	switch e.(type) {
	case *NameExpr, *IndexExpr, *CallExpr, *ParenExpr:
		p.expr(e)
	default:
		p.tok("(")
		p.expr(e)
		p.tok(")")
	}
}

// quoteString 把字符串字面量编码为双引号形式。
// 不可打印字节使用三位十进制转义，保证输出保持在同一物理行上
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString("\\\"")
		case c == '\\':
			b.WriteString("\\\\")
		case c < 32 || c >= 127:
			fmt.Fprintf(&b, "\\%03d", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// FormatNumber 把数值格式化为最短的 Lua 数字字面量文本
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseNumber 解析 Lua 数字字面量文本（十进制或 0x 十六进制）
func ParseNumber(s string) (float64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("无效的十六进制数字 %q", s)
		}
		return float64(n), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的数字字面量 %q", s)
	}
	return v, nil
}
