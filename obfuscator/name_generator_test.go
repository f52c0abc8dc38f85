package obfuscator

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNaturalNamesUniqueAndValid(t *testing.T) {
	gen := NewNaturalNameGenerator(rand.New(rand.NewSource(51)))
	ident := regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	seen := make(map[string]bool)
	for i := 0; i < 300; i++ {
		name := gen.Next()
		assert.False(t, seen[name], "名字 %q 重复", name)
		assert.True(t, ident.MatchString(name), "名字 %q 不是合法标识符", name)
		assert.False(t, isLuaKeyword(name))
		seen[name] = true
	}
}

func TestNaturalNamesDeterministic(t *testing.T) {
	g1 := NewNaturalNameGenerator(rand.New(rand.NewSource(52)))
	g2 := NewNaturalNameGenerator(rand.New(rand.NewSource(52)))
	for i := 0; i < 50; i++ {
		assert.Equal(t, g1.Next(), g2.Next())
	}
}

func TestShuffledAlphabetPermutation(t *testing.T) {
	a := shuffledAlphabet(rand.New(rand.NewSource(53)))
	assert.Len(t, a, 64)
	assert.NotEqual(t, stdBase64Alphabet, a)

	counts := make(map[byte]int)
	for i := 0; i < len(a); i++ {
		counts[a[i]]++
	}
	for i := 0; i < len(stdBase64Alphabet); i++ {
		assert.Equal(t, 1, counts[stdBase64Alphabet[i]])
	}
}

func TestXorBytesInvolution(t *testing.T) {
	s := "mixed \x00\xff payload"
	once := xorBytes(s, 90)
	twice := xorBytes(string(once), 90)
	assert.Equal(t, s, string(twice))
}

func TestIsIntegral(t *testing.T) {
	assert.True(t, isIntegral(0))
	assert.True(t, isIntegral(-42))
	assert.True(t, isIntegral(1e9))
	assert.False(t, isIntegral(0.5))
	assert.False(t, isIntegral(1e53))
}
