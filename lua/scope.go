package lua

import "fmt"

// Scope 表示词法作用域树中的一个节点。
// 根作用域额外持有全局已用标识符集合和新标识符的分配器，
// 保证任何变换遍注入的变量名都不会与程序中已有的名字冲突
type Scope struct {
	parent   *Scope
	children []*Scope

	// 本作用域中声明的标识符
	names map[string]bool

	// 对祖先作用域中标识符的引用计数（祖先作用域 -> 名字 -> 次数）
	refs map[*Scope]map[string]int

	// 仅根作用域使用
	used    map[string]bool
	nameGen func() string
	counter int
}

// NewRootScope 创建一个根作用域
func NewRootScope() *Scope {
	s := &Scope{
		names: make(map[string]bool),
		refs:  make(map[*Scope]map[string]int),
		used:  make(map[string]bool),
	}
	s.nameGen = func() string {
		s.counter++
		return fmt.Sprintf("v%d", s.counter)
	}
	return s
}

// NewChild 创建一个以 s 为父的子作用域
func (s *Scope) NewChild() *Scope {
	c := &Scope{
		parent: s,
		names:  make(map[string]bool),
		refs:   make(map[*Scope]map[string]int),
	}
	s.children = append(s.children, c)
	return c
}

// Root 返回作用域树的根
func (s *Scope) Root() *Scope {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Parent 返回父作用域，根作用域返回 nil
func (s *Scope) Parent() *Scope { return s.parent }

// SetParent 把 s 重新挂接到宿主作用域 p 下。
// 用于把解析出的代码片段合并进宿主树：片段根记录的已用名字
// 会并入宿主根，避免后续分配出冲突的标识符
func (s *Scope) SetParent(p *Scope) {
	oldRoot := s.Root()
	if s.parent != nil {
		// 从原父节点摘除
		siblings := s.parent.children
		for i, c := range siblings {
			if c == s {
				s.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	s.parent = p
	p.children = append(p.children, s)
	newRoot := p.Root()
	if oldRoot != newRoot && oldRoot.used != nil {
		for name := range oldRoot.used {
			newRoot.used[name] = true
		}
	}
}

// SetNameSource 替换根作用域的标识符分配器
func (s *Scope) SetNameSource(fn func() string) {
	s.Root().nameGen = fn
}

// AddVariable 在本作用域中分配并声明一个全新的标识符
func (s *Scope) AddVariable() string {
	root := s.Root()
	for {
		name := root.nameGen()
		if !root.used[name] && !isKeyword(name) {
			s.Declare(name)
			return name
		}
	}
}

// Declare 在本作用域中登记一个已存在的标识符
func (s *Scope) Declare(name string) {
	s.names[name] = true
	s.MarkUsed(name)
}

// MarkUsed 在根作用域登记一个出现过的标识符（包括全局名和字段名），
// 使 AddVariable 永远不会再分配它
func (s *Scope) MarkUsed(name string) {
	s.Root().used[name] = true
}

// Declared 判断名字是否在本作用域（不含祖先）中声明
func (s *Scope) Declared(name string) bool { return s.names[name] }

// Resolve 沿作用域链向上查找声明了 name 的作用域，找不到返回 nil
func (s *Scope) Resolve(name string) *Scope {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.names[name] {
			return sc
		}
	}
	return nil
}

// AddReferenceToHigherScope 记录一次从 s 到祖先作用域 ancestor 中
// 标识符 name 的引用
func (s *Scope) AddReferenceToHigherScope(ancestor *Scope, name string) {
	m := s.refs[ancestor]
	if m == nil {
		m = make(map[string]int)
		s.refs[ancestor] = m
	}
	m[name]++
}

// RemoveReferenceToHigherScope 撤销一次引用记录
func (s *Scope) RemoveReferenceToHigherScope(ancestor *Scope, name string) {
	m := s.refs[ancestor]
	if m == nil {
		return
	}
	m[name]--
	if m[name] <= 0 {
		delete(m, name)
	}
}

// ReferenceCount 返回 s 对祖先作用域 ancestor 中 name 的引用次数
func (s *Scope) ReferenceCount(ancestor *Scope, name string) int {
	if m := s.refs[ancestor]; m != nil {
		return m[name]
	}
	return 0
}

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

func isKeyword(name string) bool { return luaKeywords[name] }
