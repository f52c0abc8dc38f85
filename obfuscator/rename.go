package obfuscator

import (
	"lua-obfuscator/lua"
)

// VariableRenamePass 把所有局部变量和形参重命名为生成的标识符。
// 全局变量、表字段和方法名不动，self 保持原样
type VariableRenamePass struct{}

// NewVariableRenamePass 创建变量重命名变换
func NewVariableRenamePass() *VariableRenamePass { return &VariableRenamePass{} }

func (p *VariableRenamePass) Name() string        { return "rename" }
func (p *VariableRenamePass) Description() string { return "重命名局部变量" }

func (p *VariableRenamePass) SettingsDescriptor() Settings { return Settings{} }

func (p *VariableRenamePass) Configure(settings map[string]interface{}) error {
	_, err := p.SettingsDescriptor().Validate(settings)
	return err
}

func (p *VariableRenamePass) Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error) {
	r := &renamer{chunk: chunk, pcfg: pcfg}
	r.block(chunk.Block, nil)
	return chunk, nil
}

// renameEnv 一条作用域链上的旧名 -> 新名映射
type renameEnv struct {
	parent *renameEnv
	names  map[string]string
}

func newRenameEnv(parent *renameEnv) *renameEnv {
	return &renameEnv{parent: parent, names: make(map[string]string)}
}

func (e *renameEnv) lookup(name string) (string, bool) {
	for env := e; env != nil; env = env.parent {
		if n, ok := env.names[name]; ok {
			return n, true
		}
	}
	return "", false
}

type renamer struct {
	chunk *lua.Chunk
	pcfg  *PipelineConfig
}

// fresh 为旧名分配一个新标识符。self 不参与重命名，
// 它是冒号调用约定的一部分
func (r *renamer) fresh(env *renameEnv, old string) string {
	if old == "self" {
		return old
	}
	name := r.chunk.Scope.AddVariable()
	env.names[old] = name
	r.pcfg.Stats.VariablesRenamed++
	return name
}

func (r *renamer) block(b *lua.Block, parent *renameEnv) {
	env := newRenameEnv(parent)
	for _, s := range b.Stmts {
		r.stmt(s, env)
	}
}

func (r *renamer) stmt(s lua.Stmt, env *renameEnv) {
	switch st := s.(type) {
	case *lua.LocalStmt:
		// 初始化表达式在声明生效之前求值
		r.exprs(st.Exprs, env)
		for i, n := range st.Names {
			st.Names[i] = r.fresh(env, n)
		}
	case *lua.AssignStmt:
		r.exprs(st.Targets, env)
		r.exprs(st.Exprs, env)
	case *lua.CallStmt:
		r.expr(st.Call, env)
	case *lua.DoStmt:
		r.block(st.Body, env)
	case *lua.WhileStmt:
		r.expr(st.Cond, env)
		r.block(st.Body, env)
	case *lua.RepeatStmt:
		// until 条件可以引用循环体内的局部变量
		bodyEnv := newRenameEnv(env)
		for _, inner := range st.Body.Stmts {
			r.stmt(inner, bodyEnv)
		}
		r.expr(st.Cond, bodyEnv)
	case *lua.IfStmt:
		r.expr(st.Cond, env)
		r.block(st.Then, env)
		for i := range st.ElseIfs {
			r.expr(st.ElseIfs[i].Cond, env)
			r.block(st.ElseIfs[i].Body, env)
		}
		if st.Else != nil {
			r.block(st.Else, env)
		}
	case *lua.NumericForStmt:
		r.expr(st.Start, env)
		r.expr(st.Limit, env)
		if st.Step != nil {
			r.expr(st.Step, env)
		}
		loopEnv := newRenameEnv(env)
		st.Name = r.fresh(loopEnv, st.Name)
		for _, inner := range st.Body.Stmts {
			r.stmt(inner, loopEnv)
		}
	case *lua.GenericForStmt:
		r.exprs(st.Exprs, env)
		loopEnv := newRenameEnv(env)
		for i, n := range st.Names {
			st.Names[i] = r.fresh(loopEnv, n)
		}
		for _, inner := range st.Body.Stmts {
			r.stmt(inner, loopEnv)
		}
	case *lua.FunctionStmt:
		if st.IsLocal {
			// local function 的名字在函数体内可见（递归）
			name := st.Target.(*lua.NameExpr)
			name.Name = r.fresh(env, name.Name)
		} else {
			// 只有路径起点可能是局部变量，字段名不动
			base := st.Target
			for {
				idx, ok := base.(*lua.IndexExpr)
				if !ok {
					break
				}
				base = idx.Object
			}
			if name, ok := base.(*lua.NameExpr); ok {
				if n, bound := env.lookup(name.Name); bound {
					name.Name = n
				}
			}
		}
		r.function(st.Func, env)
	case *lua.ReturnStmt:
		r.exprs(st.Exprs, env)
	case *lua.BreakStmt:
	}
}

func (r *renamer) function(fn *lua.FuncExpr, env *renameEnv) {
	fnEnv := newRenameEnv(env)
	for i, param := range fn.Params {
		fn.Params[i] = r.fresh(fnEnv, param)
	}
	for _, inner := range fn.Body.Stmts {
		r.stmt(inner, fnEnv)
	}
}

func (r *renamer) exprs(list []lua.Expr, env *renameEnv) {
	for _, e := range list {
		r.expr(e, env)
	}
}

func (r *renamer) expr(e lua.Expr, env *renameEnv) {
	switch ex := e.(type) {
	case *lua.NameExpr:
		if n, ok := env.lookup(ex.Name); ok {
			ex.Name = n
		}
	case *lua.IndexExpr:
		r.expr(ex.Object, env)
		if !ex.Dot {
			r.expr(ex.Key, env)
		}
	case *lua.CallExpr:
		r.expr(ex.Func, env)
		r.exprs(ex.Args, env)
	case *lua.FuncExpr:
		r.function(ex, env)
	case *lua.TableExpr:
		for i := range ex.Fields {
			f := &ex.Fields[i]
			if f.Key != nil && !f.NameKey {
				r.expr(f.Key, env)
			}
			r.expr(f.Value, env)
		}
	case *lua.BinaryExpr:
		r.expr(ex.Lhs, env)
		r.expr(ex.Rhs, env)
	case *lua.UnaryExpr:
		r.expr(ex.Operand, env)
	case *lua.ParenExpr:
		r.expr(ex.Inner, env)
	}
}
