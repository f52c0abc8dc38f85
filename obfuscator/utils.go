package obfuscator

import (
	"math"
	"math/rand"
)

const stdBase64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// shuffledAlphabet 返回打乱顺序的 64 字符编码表
func shuffledAlphabet(rng *rand.Rand) string {
	chars := []byte(stdBase64Alphabet)
	rng.Shuffle(len(chars), func(i, j int) {
		chars[i], chars[j] = chars[j], chars[i]
	})
	return string(chars)
}

// xorBytes 把每个字节与 key 异或
func xorBytes(s string, key byte) []byte {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = s[i] ^ key
	}
	return out
}

// isIntegral 判断数值是否为整数且在浮点可精确表示的范围内
func isIntegral(v float64) bool {
	return v == math.Trunc(v) && math.Abs(v) < 1<<52
}

// randomBytes 生成指定长度的随机字节串
func randomBytes(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Intn(256))
	}
	return string(b)
}
