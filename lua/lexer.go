package lua

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tkEOF tokenKind = iota
	tkName
	tkKeyword
	tkNumber
	tkString
	tkOp
)

// token 一个词法单元。字符串的 text 保存解码后的内容
type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

// lexer 把源代码切分为词法单元序列
type lexer struct {
	src  string
	name string
	pos  int
	line int
}

func newLexer(src, name string) *lexer {
	return &lexer{src: src, name: name, line: 1}
}

func (l *lexer) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s:%d: %s", l.name, l.line, fmt.Sprintf(format, args...))
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
	}
	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
func isNameChar(c byte) bool { return isNameStart(c) || isDigit(c) }

// tokens 扫描全部输入
func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tkEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '-' && l.peekAt(1) == '-':
			l.pos += 2
			if l.peek() == '[' {
				if level, ok := l.longBracketLevel(); ok {
					if _, err := l.readLongString(level); err != nil {
						return token{}, err
					}
					continue
				}
			}
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.pos++
			}
		default:
			goto scan
		}
	}
	return token{kind: tkEOF, line: l.line}, nil

scan:
	line := l.line
	c := l.peek()

	if isNameStart(c) {
		start := l.pos
		for l.pos < len(l.src) && isNameChar(l.peek()) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if isKeyword(word) {
			return token{kind: tkKeyword, text: word, line: line}, nil
		}
		return token{kind: tkName, text: word, line: line}, nil
	}

	if isDigit(c) || (c == '.' && isDigit(l.peekAt(1))) {
		return l.readNumber(line)
	}

	switch c {
	case '"', '\'':
		return l.readString(line)
	case '[':
		if level, ok := l.longBracketLevel(); ok {
			s, err := l.readLongString(level)
			if err != nil {
				return token{}, err
			}
			return token{kind: tkString, text: s, line: line}, nil
		}
		l.pos++
		return token{kind: tkOp, text: "[", line: line}, nil
	}

	// 多字符运算符
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "~=", "<=", ">=":
		l.pos += 2
		return token{kind: tkOp, text: two, line: line}, nil
	case "..":
		if l.peekAt(2) == '.' {
			l.pos += 3
			return token{kind: tkOp, text: "...", line: line}, nil
		}
		l.pos += 2
		return token{kind: tkOp, text: "..", line: line}, nil
	}

	switch c {
	case '+', '-', '*', '/', '%', '^', '#', '<', '>', '=', '(', ')', '{', '}', ']', ';', ':', ',', '.':
		l.pos++
		return token{kind: tkOp, text: string(c), line: line}, nil
	}
	return token{}, l.errorf("意外的字符 %q", c)
}

// longBracketLevel 检测 [、[=、[== 等长括号开头，返回等号层级
func (l *lexer) longBracketLevel() (int, bool) {
	if l.peek() != '[' {
		return 0, false
	}
	n := 1
	for l.peekAt(n) == '=' {
		n++
	}
	if l.peekAt(n) == '[' {
		return n - 1, true
	}
	return 0, false
}

// readLongString 读取 [[...]] 长字符串（或长注释）内容，调用时位于起始 '['
func (l *lexer) readLongString(level int) (string, error) {
	// 跳过起始括号
	for i := 0; i < level+2; i++ {
		l.advance()
	}
	// 紧跟起始括号的首个换行被忽略
	if l.peek() == '\n' {
		l.advance()
	}
	closing := "]" + strings.Repeat("=", level) + "]"
	start := l.pos
	idx := strings.Index(l.src[l.pos:], closing)
	if idx < 0 {
		return "", l.errorf("长字符串未闭合")
	}
	content := l.src[start : start+idx]
	for i := 0; i < idx+len(closing); i++ {
		l.advance()
	}
	return content, nil
}

func (l *lexer) readString(line int) (token, error) {
	quote := l.advance()
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return token{}, l.errorf("字符串未闭合")
		}
		c := l.advance()
		if c == quote {
			return token{kind: tkString, text: b.String(), line: line}, nil
		}
		if c == '\n' {
			return token{}, l.errorf("字符串中出现换行")
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if l.pos >= len(l.src) {
			return token{}, l.errorf("字符串未闭合")
		}
		e := l.advance()
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte(7)
		case 'b':
			b.WriteByte(8)
		case 'f':
			b.WriteByte(12)
		case 'v':
			b.WriteByte(11)
		case '\\', '"', '\'':
			b.WriteByte(e)
		case '\n':
			b.WriteByte('\n')
		default:
			if !isDigit(e) {
				return token{}, l.errorf("无效的转义序列 \\%c", e)
			}
			// \ddd 十进制转义，最多三位
			n := int(e - '0')
			for i := 0; i < 2 && isDigit(l.peek()); i++ {
				n = n*10 + int(l.advance()-'0')
			}
			if n > 255 {
				return token{}, l.errorf("转义值超出范围: %d", n)
			}
			b.WriteByte(byte(n))
		}
	}
}

func (l *lexer) readNumber(line int) (token, error) {
	start := l.pos
	if l.peek() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.peek()) {
			l.pos++
		}
		if l.pos == start+2 {
			return token{}, l.errorf("格式错误的十六进制数字")
		}
		return token{kind: tkNumber, text: l.src[start:l.pos], line: line}, nil
	}
	for l.pos < len(l.src) && isDigit(l.peek()) {
		l.pos++
	}
	if l.peek() == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.peek()) {
			l.pos++
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		n := 1
		if l.peekAt(1) == '+' || l.peekAt(1) == '-' {
			n = 2
		}
		if isDigit(l.peekAt(n)) {
			l.pos += n
			for l.pos < len(l.src) && isDigit(l.peek()) {
				l.pos++
			}
		}
	}
	return token{kind: tkNumber, text: l.src[start:l.pos], line: line}, nil
}
