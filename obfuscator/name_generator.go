package obfuscator

import (
	"math/rand"
	"strings"
)

// NaturalNameGenerator 生成看起来自然的 Lua 标识符。
// 注入的运行时变量和重命名后的局部变量都从这里取名，
// 名字刻意模仿普通脚本里的变量风格，避免一眼看出是生成的
type NaturalNameGenerator struct {
	rng       *rand.Rand
	usedNames map[string]bool

	// 单词库
	prefixes []string
	suffixes []string
}

// NewNaturalNameGenerator 创建自然名称生成器，随机性来自共享随机源
func NewNaturalNameGenerator(rng *rand.Rand) *NaturalNameGenerator {
	return &NaturalNameGenerator{
		rng:       rng,
		usedNames: make(map[string]bool),

		// 常见的脚本变量前缀
		prefixes: []string{
			"data", "tmp", "buf", "cfg", "ctx", "idx", "val", "res",
			"node", "item", "list", "pool", "slot", "cache", "state",
		},

		// 常见的动词和后缀
		suffixes: []string{
			"handler", "helper", "proxy", "table", "entry", "count",
			"cursor", "queue", "stack", "store", "map", "ref", "ptr",
		},
	}
}

// Next 生成一个未用过的标识符
func (g *NaturalNameGenerator) Next() string {
	for attempt := 0; attempt < 1000; attempt++ {
		name := g.generate()
		if !g.usedNames[name] && !isLuaKeyword(name) {
			g.usedNames[name] = true
			return name
		}
	}
	// 实在撞名就退回随机可读串
	name := g.randomReadable(8 + g.rng.Intn(8))
	g.usedNames[name] = true
	return name
}

func (g *NaturalNameGenerator) generate() string {
	prefix := g.prefixes[g.rng.Intn(len(g.prefixes))]
	suffix := g.suffixes[g.rng.Intn(len(g.suffixes))]
	name := prefix + "_" + suffix
	// 偶尔带个数字尾巴，像手写代码里的临时变量
	if g.rng.Intn(3) == 0 {
		name += string(rune('0' + g.rng.Intn(10)))
	}
	return name
}

// randomReadable 生成辅音元音交替的随机可读名称
func (g *NaturalNameGenerator) randomReadable(length int) string {
	vowels := "aeiou"
	consonants := "bcdfghjklmnpqrstvwxyz"

	var b strings.Builder
	useVowel := false
	for b.Len() < length {
		if useVowel {
			b.WriteByte(vowels[g.rng.Intn(len(vowels))])
		} else {
			b.WriteByte(consonants[g.rng.Intn(len(consonants))])
		}
		useVowel = !useVowel
	}
	return b.String()
}

var luaReserved = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "if": true,
	"in": true, "local": true, "nil": true, "not": true, "or": true,
	"repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

func isLuaKeyword(name string) bool { return luaReserved[name] }
