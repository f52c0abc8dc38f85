package lua

import (
	"fmt"

	"github.com/pkg/errors"
)

// parser 递归下降解析器，边解析边构建作用域树
type parser struct {
	toks  []token
	pos   int
	name  string
	scope *Scope
}

// Parse 把 Lua 源代码解析为语法树，并填充作用域信息
func Parse(src, name string) (*Chunk, error) {
	toks, err := newLexer(src, name).tokens()
	if err != nil {
		return nil, err
	}
	root := NewRootScope()
	p := &parser{toks: toks, name: name, scope: root}
	block, err := p.parseBlock(root.NewChild())
	if err != nil {
		return nil, err
	}
	if !p.at(tkEOF, "") {
		return nil, p.errorf("意外的词法单元 %q", p.cur().text)
	}
	return &Chunk{Name: name, Block: block, Scope: root}, nil
}

// ParseFragment 解析一段注入用的运行时代码片段并把它的作用域
// 挂接到宿主作用域下。片段在合法配置下不应当解析失败；
// 失败意味着模板本身有缺陷，按内部致命错误向上传播
func ParseFragment(src string, host *Scope) ([]Stmt, error) {
	chunk, err := Parse(src, "fragment")
	if err != nil {
		return nil, errors.Wrap(err, "运行时代码片段解析失败（模板缺陷）")
	}
	chunk.Block.Scope.SetParent(host)
	return chunk.Block.Stmts, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) at(kind tokenKind, text string) bool {
	t := p.cur()
	if t.kind != kind {
		return false
	}
	return text == "" || t.text == text
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.at(kind, text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, text string) (token, error) {
	if p.at(kind, text) {
		return p.next(), nil
	}
	return token{}, p.errorf("期望 %q，实际为 %q", text, p.cur().text)
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", p.name, p.cur().line, fmt.Sprintf(format, args...))
}

// blockEnd 判断当前词法单元是否结束一个块
func (p *parser) blockEnd() bool {
	t := p.cur()
	if t.kind == tkEOF {
		return true
	}
	if t.kind != tkKeyword {
		return false
	}
	switch t.text {
	case "end", "else", "elseif", "until":
		return true
	}
	return false
}

// parseBlock 解析语句序列直到块结束。sc 为该块的作用域
func (p *parser) parseBlock(sc *Scope) (*Block, error) {
	prev := p.scope
	p.scope = sc
	defer func() { p.scope = prev }()

	b := &Block{Scope: sc}
	for !p.blockEnd() {
		if p.accept(tkOp, ";") {
			continue
		}
		st, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		b.Stmts = append(b.Stmts, st)
		// return 和 break 必须是块内最后一条语句
		switch st.(type) {
		case *ReturnStmt, *BreakStmt:
			p.accept(tkOp, ";")
			if !p.blockEnd() {
				return nil, p.errorf("return/break 之后还有语句")
			}
			return b, nil
		}
	}
	return b, nil
}

func (p *parser) parseStatement() (Stmt, error) {
	t := p.cur()
	if t.kind == tkKeyword {
		switch t.text {
		case "do":
			return p.parseDo()
		case "while":
			return p.parseWhile()
		case "repeat":
			return p.parseRepeat()
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "function":
			return p.parseFunctionStmt()
		case "local":
			return p.parseLocal()
		case "return":
			line := p.next().line
			st := &ReturnStmt{}
			st.SetLine(line)
			if !p.blockEnd() && !p.at(tkOp, ";") {
				exprs, err := p.parseExprList()
				if err != nil {
					return nil, err
				}
				st.Exprs = exprs
			}
			return st, nil
		case "break":
			line := p.next().line
			st := &BreakStmt{}
			st.SetLine(line)
			return st, nil
		}
	}
	return p.parseExprStatement()
}

func (p *parser) parseDo() (Stmt, error) {
	line := p.next().line
	body, err := p.parseBlock(p.scope.NewChild())
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "end"); err != nil {
		return nil, err
	}
	st := &DoStmt{Body: body}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	line := p.next().line
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "do"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(p.scope.NewChild())
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "end"); err != nil {
		return nil, err
	}
	st := &WhileStmt{Cond: cond, Body: body}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseRepeat() (Stmt, error) {
	line := p.next().line
	sc := p.scope.NewChild()
	body, err := p.parseBlock(sc)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "until"); err != nil {
		return nil, err
	}
	// until 条件可以引用循环体内声明的局部变量
	prev := p.scope
	p.scope = sc
	cond, err := p.parseExpr()
	p.scope = prev
	if err != nil {
		return nil, err
	}
	st := &RepeatStmt{Body: body, Cond: cond}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseIf() (Stmt, error) {
	line := p.next().line
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "then"); err != nil {
		return nil, err
	}
	then, err := p.parseBlock(p.scope.NewChild())
	if err != nil {
		return nil, err
	}
	st := &IfStmt{Cond: cond, Then: then}
	st.SetLine(line)
	for p.accept(tkKeyword, "elseif") {
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkKeyword, "then"); err != nil {
			return nil, err
		}
		b, err := p.parseBlock(p.scope.NewChild())
		if err != nil {
			return nil, err
		}
		st.ElseIfs = append(st.ElseIfs, ElseIfClause{Cond: c, Body: b})
	}
	if p.accept(tkKeyword, "else") {
		b, err := p.parseBlock(p.scope.NewChild())
		if err != nil {
			return nil, err
		}
		st.Else = b
	}
	if _, err := p.expect(tkKeyword, "end"); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *parser) parseFor() (Stmt, error) {
	line := p.next().line
	first, err := p.expect(tkName, "")
	if err != nil {
		return nil, err
	}
	if p.accept(tkOp, "=") {
		// 数值 for
		start, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkOp, ","); err != nil {
			return nil, err
		}
		limit, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		var step Expr
		if p.accept(tkOp, ",") {
			if step, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(tkKeyword, "do"); err != nil {
			return nil, err
		}
		sc := p.scope.NewChild()
		sc.Declare(first.text)
		body, err := p.parseBlock(sc)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkKeyword, "end"); err != nil {
			return nil, err
		}
		st := &NumericForStmt{Name: first.text, Start: start, Limit: limit, Step: step, Body: body}
		st.SetLine(line)
		return st, nil
	}

	names := []string{first.text}
	for p.accept(tkOp, ",") {
		n, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		names = append(names, n.text)
	}
	if _, err := p.expect(tkKeyword, "in"); err != nil {
		return nil, err
	}
	exprs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "do"); err != nil {
		return nil, err
	}
	sc := p.scope.NewChild()
	for _, n := range names {
		sc.Declare(n)
	}
	body, err := p.parseBlock(sc)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "end"); err != nil {
		return nil, err
	}
	st := &GenericForStmt{Names: names, Exprs: exprs, Body: body}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseFunctionStmt() (Stmt, error) {
	line := p.next().line
	n, err := p.expect(tkName, "")
	if err != nil {
		return nil, err
	}
	p.scope.MarkUsed(n.text)
	p.recordReference(n.text)
	var target Expr = NewName(n.text)
	method := ""
	for p.accept(tkOp, ".") {
		field, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		p.scope.MarkUsed(field.text)
		target = NewDotIndex(target, field.text)
	}
	if p.accept(tkOp, ":") {
		m, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		p.scope.MarkUsed(m.text)
		method = m.text
	}
	fn, err := p.parseFuncBody(method != "")
	if err != nil {
		return nil, err
	}
	st := &FunctionStmt{Target: target, Method: method, Func: fn}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseLocal() (Stmt, error) {
	line := p.next().line
	if p.accept(tkKeyword, "function") {
		n, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		// local function 的名字先声明，函数体内可以递归引用
		p.scope.Declare(n.text)
		fn, err := p.parseFuncBody(false)
		if err != nil {
			return nil, err
		}
		st := &FunctionStmt{Target: NewName(n.text), IsLocal: true, Func: fn}
		st.SetLine(line)
		return st, nil
	}

	var names []string
	for {
		n, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		names = append(names, n.text)
		if !p.accept(tkOp, ",") {
			break
		}
	}
	st := &LocalStmt{Names: names}
	st.SetLine(line)
	if p.accept(tkOp, "=") {
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		st.Exprs = exprs
	}
	// 初始化表达式求值时局部变量尚不可见，声明放在最后
	for _, n := range names {
		p.scope.Declare(n)
	}
	return st, nil
}

func (p *parser) parseFuncBody(isMethod bool) (*FuncExpr, error) {
	line := p.cur().line
	if _, err := p.expect(tkOp, "("); err != nil {
		return nil, err
	}
	sc := p.scope.NewChild()
	fn := &FuncExpr{}
	fn.SetLine(line)
	if isMethod {
		sc.Declare("self")
	}
	for !p.at(tkOp, ")") {
		if p.accept(tkOp, "...") {
			fn.IsVararg = true
			break
		}
		n, err := p.expect(tkName, "")
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, n.text)
		sc.Declare(n.text)
		if !p.accept(tkOp, ",") {
			break
		}
	}
	if _, err := p.expect(tkOp, ")"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(sc)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkKeyword, "end"); err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

// parseExprStatement 解析赋值或调用语句
func (p *parser) parseExprStatement() (Stmt, error) {
	line := p.cur().line
	first, err := p.parseSuffixedExpr()
	if err != nil {
		return nil, err
	}
	if p.at(tkOp, "=") || p.at(tkOp, ",") {
		targets := []Expr{first}
		for p.accept(tkOp, ",") {
			e, err := p.parseSuffixedExpr()
			if err != nil {
				return nil, err
			}
			targets = append(targets, e)
		}
		for _, t := range targets {
			switch t.(type) {
			case *NameExpr, *IndexExpr:
			default:
				return nil, p.errorf("无法对该表达式赋值")
			}
		}
		if _, err := p.expect(tkOp, "="); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		st := &AssignStmt{Targets: targets, Exprs: exprs}
		st.SetLine(line)
		return st, nil
	}
	if _, ok := first.(*CallExpr); !ok {
		return nil, p.errorf("该表达式不能作为语句")
	}
	st := &CallStmt{Call: first}
	st.SetLine(line)
	return st, nil
}

func (p *parser) parseExprList() ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.accept(tkOp, ",") {
			return out, nil
		}
	}
}

// 二元运算符优先级。^ 和 .. 为右结合
var binaryPrec = map[string][2]int{
	"or":  {1, 1},
	"and": {2, 2},
	"<":   {3, 3}, ">": {3, 3}, "<=": {3, 3}, ">=": {3, 3}, "~=": {3, 3}, "==": {3, 3},
	"..": {5, 4},
	"+":  {6, 6}, "-": {6, 6},
	"*": {7, 7}, "/": {7, 7}, "%": {7, 7},
	"^": {10, 9},
}

const unaryPrec = 8

func (p *parser) binaryOp() (string, [2]int, bool) {
	t := p.cur()
	if t.kind != tkOp && t.kind != tkKeyword {
		return "", [2]int{}, false
	}
	prec, ok := binaryPrec[t.text]
	return t.text, prec, ok
}

func (p *parser) parseExpr() (Expr, error) { return p.parseSubExpr(0) }

func (p *parser) parseSubExpr(limit int) (Expr, error) {
	var left Expr
	t := p.cur()
	if t.is(tkKeyword, "not") || t.is(tkOp, "#") || t.is(tkOp, "-") {
		op := p.next().text
		operand, err := p.parseSubExpr(unaryPrec)
		if err != nil {
			return nil, err
		}
		u := &UnaryExpr{Op: op, Operand: operand}
		u.SetLine(t.line)
		left = u
	} else {
		var err error
		left, err = p.parseSimpleExpr()
		if err != nil {
			return nil, err
		}
	}
	for {
		op, prec, ok := p.binaryOp()
		if !ok || prec[0] <= limit {
			return left, nil
		}
		line := p.next().line
		right, err := p.parseSubExpr(prec[1])
		if err != nil {
			return nil, err
		}
		b := NewBinary(op, left, right)
		b.SetLine(line)
		left = b
	}
}

func (p *parser) parseSimpleExpr() (Expr, error) {
	t := p.cur()
	switch {
	case t.kind == tkNumber:
		p.next()
		e := &NumberExpr{Value: t.text}
		e.SetLine(t.line)
		return e, nil
	case t.kind == tkString:
		p.next()
		e := &StringExpr{Value: t.text}
		e.SetLine(t.line)
		return e, nil
	case t.is(tkKeyword, "nil"):
		p.next()
		e := &NilExpr{}
		e.SetLine(t.line)
		return e, nil
	case t.is(tkKeyword, "true"):
		p.next()
		e := &TrueExpr{}
		e.SetLine(t.line)
		return e, nil
	case t.is(tkKeyword, "false"):
		p.next()
		e := &FalseExpr{}
		e.SetLine(t.line)
		return e, nil
	case t.is(tkOp, "..."):
		p.next()
		e := &VarargExpr{}
		e.SetLine(t.line)
		return e, nil
	case t.is(tkKeyword, "function"):
		p.next()
		return p.parseFuncBody(false)
	case t.is(tkOp, "{"):
		return p.parseTable()
	}
	return p.parseSuffixedExpr()
}

func (p *parser) parseTable() (Expr, error) {
	line := p.next().line
	tbl := &TableExpr{}
	tbl.SetLine(line)
	for !p.at(tkOp, "}") {
		var f TableField
		switch {
		case p.at(tkOp, "["):
			p.next()
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkOp, "]"); err != nil {
				return nil, err
			}
			if _, err := p.expect(tkOp, "="); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			f = TableField{Key: k, Value: v}
		case p.cur().kind == tkName && p.toks[p.pos+1].is(tkOp, "="):
			n := p.next()
			p.next() // "="
			p.scope.MarkUsed(n.text)
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			f = TableField{Key: NewString(n.text), Value: v, NameKey: true}
		default:
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			f = TableField{Value: v}
		}
		tbl.Fields = append(tbl.Fields, f)
		if !p.accept(tkOp, ",") && !p.accept(tkOp, ";") {
			break
		}
	}
	if _, err := p.expect(tkOp, "}"); err != nil {
		return nil, err
	}
	return tbl, nil
}

// recordReference 登记一次名字引用：如果名字声明于祖先作用域，
// 记录跨作用域引用关系
func (p *parser) recordReference(name string) {
	p.scope.MarkUsed(name)
	owner := p.scope.Resolve(name)
	if owner != nil && owner != p.scope {
		p.scope.AddReferenceToHigherScope(owner, name)
	}
}

func (p *parser) parsePrimaryExpr() (Expr, error) {
	t := p.cur()
	if t.kind == tkName {
		p.next()
		p.recordReference(t.text)
		e := NewName(t.text)
		e.SetLine(t.line)
		return e, nil
	}
	if t.is(tkOp, "(") {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkOp, ")"); err != nil {
			return nil, err
		}
		e := &ParenExpr{Inner: inner}
		e.SetLine(t.line)
		return e, nil
	}
	return nil, p.errorf("意外的词法单元 %q", t.text)
}

func (p *parser) parseSuffixedExpr() (Expr, error) {
	e, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		t := p.cur()
		switch {
		case t.is(tkOp, "."):
			p.next()
			n, err := p.expect(tkName, "")
			if err != nil {
				return nil, err
			}
			p.scope.MarkUsed(n.text)
			e = NewDotIndex(e, n.text)
		case t.is(tkOp, "["):
			p.next()
			k, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkOp, "]"); err != nil {
				return nil, err
			}
			e = NewIndex(e, k)
		case t.is(tkOp, ":"):
			p.next()
			m, err := p.expect(tkName, "")
			if err != nil {
				return nil, err
			}
			p.scope.MarkUsed(m.text)
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			call := &CallExpr{Func: e, Method: m.text, Args: args}
			call.SetLine(t.line)
			e = call
		case t.is(tkOp, "(") || t.kind == tkString || t.is(tkOp, "{"):
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			call := &CallExpr{Func: e, Args: args}
			call.SetLine(t.line)
			e = call
		default:
			return e, nil
		}
	}
}

func (p *parser) parseCallArgs() ([]Expr, error) {
	t := p.cur()
	// f"lit" 与 f{...} 形式的调用
	if t.kind == tkString {
		p.next()
		s := &StringExpr{Value: t.text}
		s.SetLine(t.line)
		return []Expr{s}, nil
	}
	if t.is(tkOp, "{") {
		tbl, err := p.parseTable()
		if err != nil {
			return nil, err
		}
		return []Expr{tbl}, nil
	}
	if _, err := p.expect(tkOp, "("); err != nil {
		return nil, err
	}
	if p.accept(tkOp, ")") {
		return nil, nil
	}
	args, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tkOp, ")"); err != nil {
		return nil, err
	}
	return args, nil
}
