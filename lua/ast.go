package lua

// Node 是所有语法树节点的公共接口
type Node interface {
	Line() int
}

// Expr 表达式节点
type Expr interface {
	Node
	exprNode()
}

// Stmt 语句节点
type Stmt interface {
	Node
	stmtNode()
}

// base 记录节点所在的源代码行号
type base struct {
	line int
}

func (b *base) Line() int     { return b.line }
func (b *base) SetLine(n int) { b.line = n }

// Chunk 表示一个完整的程序（顶层块 + 根作用域）
type Chunk struct {
	Name  string
	Block *Block
	Scope *Scope // 根作用域，由管线独占持有
}

// Block 表示一个语句块，持有自己的词法作用域
type Block struct {
	Stmts []Stmt
	Scope *Scope
}

// ---------- 表达式 ----------

// NilExpr nil 字面量
type NilExpr struct{ base }

// TrueExpr true 字面量
type TrueExpr struct{ base }

// FalseExpr false 字面量
type FalseExpr struct{ base }

// VarargExpr 可变参数 "..."
type VarargExpr struct{ base }

// NumberExpr 数字字面量，Value 保存源代码中的原始文本
type NumberExpr struct {
	base
	Value string
}

// StringExpr 字符串字面量，Value 保存解码后的原始字节
type StringExpr struct {
	base
	Value string
}

// NameExpr 标识符引用
type NameExpr struct {
	base
	Name string
}

// IndexExpr 索引访问。Dot 为 true 时表示 a.b 形式的语法糖，
// 此时 Key 一定是合法标识符内容的 StringExpr，变换遍不会把它当作字面量处理
type IndexExpr struct {
	base
	Object Expr
	Key    Expr
	Dot    bool
}

// CallExpr 函数调用。Method 非空时表示 obj:method(args) 形式
type CallExpr struct {
	base
	Func   Expr
	Method string
	Args   []Expr
}

// FuncExpr 函数字面量
type FuncExpr struct {
	base
	Params    []string
	IsVararg  bool
	Body      *Block
}

// TableField 表构造器的一个字段。Key 为 nil 表示数组项；
// NameKey 为 true 表示 {name = v} 语法糖，Key 是 StringExpr
type TableField struct {
	Key     Expr
	Value   Expr
	NameKey bool
}

// TableExpr 表构造器
type TableExpr struct {
	base
	Fields []TableField
}

// BinaryExpr 二元运算，Op 为源代码中的运算符文本
type BinaryExpr struct {
	base
	Op  string
	Lhs Expr
	Rhs Expr
}

// UnaryExpr 一元运算（not、#、-）
type UnaryExpr struct {
	base
	Op      string
	Operand Expr
}

// ParenExpr 括号表达式。必须保留：(f()) 会把多返回值截断为单值
type ParenExpr struct {
	base
	Inner Expr
}

func (*NilExpr) exprNode()    {}
func (*TrueExpr) exprNode()   {}
func (*FalseExpr) exprNode()  {}
func (*VarargExpr) exprNode() {}
func (*NumberExpr) exprNode() {}
func (*StringExpr) exprNode() {}
func (*NameExpr) exprNode()   {}
func (*IndexExpr) exprNode()  {}
func (*CallExpr) exprNode()   {}
func (*FuncExpr) exprNode()   {}
func (*TableExpr) exprNode()  {}
func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}
func (*ParenExpr) exprNode()  {}

// ---------- 语句 ----------

// LocalStmt 局部变量声明
type LocalStmt struct {
	base
	Names []string
	Exprs []Expr
}

// AssignStmt 赋值语句，Targets 只能是 NameExpr 或 IndexExpr
type AssignStmt struct {
	base
	Targets []Expr
	Exprs   []Expr
}

// CallStmt 调用语句
type CallStmt struct {
	base
	Call Expr
}

// DoStmt do ... end 块
type DoStmt struct {
	base
	Body *Block
}

// WhileStmt while 循环
type WhileStmt struct {
	base
	Cond Expr
	Body *Block
}

// RepeatStmt repeat ... until 循环，Cond 在 Body 的作用域内求值
type RepeatStmt struct {
	base
	Body *Block
	Cond Expr
}

// ElseIfClause if 语句的一个 elseif 分支
type ElseIfClause struct {
	Cond Expr
	Body *Block
}

// IfStmt 条件语句
type IfStmt struct {
	base
	Cond    Expr
	Then    *Block
	ElseIfs []ElseIfClause
	Else    *Block
}

// NumericForStmt 数值 for 循环
type NumericForStmt struct {
	base
	Name  string
	Start Expr
	Limit Expr
	Step  Expr
	Body  *Block
}

// GenericForStmt 泛型 for 循环
type GenericForStmt struct {
	base
	Names []string
	Exprs []Expr
	Body  *Block
}

// FunctionStmt 函数定义语句。IsLocal 表示 local function；
// Method 非空表示 function a.b:m() 形式
type FunctionStmt struct {
	base
	Target  Expr
	Method  string
	IsLocal bool
	Func    *FuncExpr
}

// ReturnStmt return 语句
type ReturnStmt struct {
	base
	Exprs []Expr
}

// BreakStmt break 语句
type BreakStmt struct{ base }

func (*LocalStmt) stmtNode()      {}
func (*AssignStmt) stmtNode()     {}
func (*CallStmt) stmtNode()       {}
func (*DoStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()      {}
func (*RepeatStmt) stmtNode()     {}
func (*IfStmt) stmtNode()         {}
func (*NumericForStmt) stmtNode() {}
func (*GenericForStmt) stmtNode() {}
func (*FunctionStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode()     {}
func (*BreakStmt) stmtNode()      {}

// ---------- 节点构造辅助 ----------

// NewString 创建字符串字面量节点
func NewString(s string) *StringExpr { return &StringExpr{Value: s} }

// NewNumber 以十进制表示创建数字字面量节点。负值会包装为一元取负
func NewNumber(v float64) Expr {
	if v < 0 {
		return &UnaryExpr{Op: "-", Operand: &NumberExpr{Value: FormatNumber(-v)}}
	}
	return &NumberExpr{Value: FormatNumber(v)}
}

// NewName 创建标识符引用节点
func NewName(name string) *NameExpr { return &NameExpr{Name: name} }

// NewIndex 创建 obj[key] 形式的索引节点
func NewIndex(obj, key Expr) *IndexExpr { return &IndexExpr{Object: obj, Key: key} }

// NewDotIndex 创建 obj.name 形式的索引节点
func NewDotIndex(obj Expr, name string) *IndexExpr {
	return &IndexExpr{Object: obj, Key: NewString(name), Dot: true}
}

// NewCall 创建函数调用节点
func NewCall(fn Expr, args ...Expr) *CallExpr { return &CallExpr{Func: fn, Args: args} }

// NewBinary 创建二元运算节点
func NewBinary(op string, lhs, rhs Expr) *BinaryExpr { return &BinaryExpr{Op: op, Lhs: lhs, Rhs: rhs} }

// ---------- 遍历与重写 ----------

// RewriteExprs 以后序遍历重写整个程序中的表达式。
// fn 的返回值替换原节点；返回原节点表示保持不变。
// 替换节点不会被再次访问
func (c *Chunk) RewriteExprs(fn func(Expr) Expr) {
	c.RewriteExprsWithScope(func(e Expr, _ *Scope) Expr { return fn(e) })
}

// RewriteExprsWithScope 同 RewriteExprs，但额外告知表达式所在的词法作用域
func (c *Chunk) RewriteExprsWithScope(fn func(Expr, *Scope) Expr) {
	rewriteBlock(c.Block, fn)
}

func rewriteBlock(b *Block, fn func(Expr, *Scope) Expr) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		rewriteStmt(s, b.Scope, fn)
	}
}

func rewriteStmt(s Stmt, sc *Scope, fn func(Expr, *Scope) Expr) {
	switch st := s.(type) {
	case *LocalStmt:
		rewriteExprList(st.Exprs, sc, fn)
	case *AssignStmt:
		rewriteExprList(st.Targets, sc, fn)
		rewriteExprList(st.Exprs, sc, fn)
	case *CallStmt:
		st.Call = rewriteExpr(st.Call, sc, fn)
	case *DoStmt:
		rewriteBlock(st.Body, fn)
	case *WhileStmt:
		st.Cond = rewriteExpr(st.Cond, sc, fn)
		rewriteBlock(st.Body, fn)
	case *RepeatStmt:
		rewriteBlock(st.Body, fn)
		// until 条件在循环体作用域内求值
		st.Cond = rewriteExpr(st.Cond, st.Body.Scope, fn)
	case *IfStmt:
		st.Cond = rewriteExpr(st.Cond, sc, fn)
		rewriteBlock(st.Then, fn)
		for i := range st.ElseIfs {
			st.ElseIfs[i].Cond = rewriteExpr(st.ElseIfs[i].Cond, sc, fn)
			rewriteBlock(st.ElseIfs[i].Body, fn)
		}
		rewriteBlock(st.Else, fn)
	case *NumericForStmt:
		st.Start = rewriteExpr(st.Start, sc, fn)
		st.Limit = rewriteExpr(st.Limit, sc, fn)
		if st.Step != nil {
			st.Step = rewriteExpr(st.Step, sc, fn)
		}
		rewriteBlock(st.Body, fn)
	case *GenericForStmt:
		rewriteExprList(st.Exprs, sc, fn)
		rewriteBlock(st.Body, fn)
	case *FunctionStmt:
		// 函数名路径（a.b.c）不参与重写
		rewriteBlock(st.Func.Body, fn)
	case *ReturnStmt:
		rewriteExprList(st.Exprs, sc, fn)
	case *BreakStmt:
	}
}

func rewriteExprList(list []Expr, sc *Scope, fn func(Expr, *Scope) Expr) {
	for i, e := range list {
		list[i] = rewriteExpr(e, sc, fn)
	}
}

func rewriteExpr(e Expr, sc *Scope, fn func(Expr, *Scope) Expr) Expr {
	if e == nil {
		return nil
	}
	switch ex := e.(type) {
	case *IndexExpr:
		ex.Object = rewriteExpr(ex.Object, sc, fn)
		// a.b 中的 b 是语法上的名字，不是字符串字面量
		if !ex.Dot {
			ex.Key = rewriteExpr(ex.Key, sc, fn)
		}
	case *CallExpr:
		ex.Func = rewriteExpr(ex.Func, sc, fn)
		rewriteExprList(ex.Args, sc, fn)
	case *FuncExpr:
		rewriteBlock(ex.Body, fn)
	case *TableExpr:
		for i := range ex.Fields {
			f := &ex.Fields[i]
			if f.Key != nil && !f.NameKey {
				f.Key = rewriteExpr(f.Key, sc, fn)
			}
			f.Value = rewriteExpr(f.Value, sc, fn)
		}
	case *BinaryExpr:
		ex.Lhs = rewriteExpr(ex.Lhs, sc, fn)
		ex.Rhs = rewriteExpr(ex.Rhs, sc, fn)
	case *UnaryExpr:
		ex.Operand = rewriteExpr(ex.Operand, sc, fn)
	case *ParenExpr:
		ex.Inner = rewriteExpr(ex.Inner, sc, fn)
	}
	return fn(e, sc)
}
