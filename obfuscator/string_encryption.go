package obfuscator

import (
	"fmt"
	"math/rand"

	"lua-obfuscator/lua"
)

// StringEncryptionPass 用带明文链接的流密码加密每个字符串字面量。
// 引用处换成对注入的解密入口的调用，解码延迟到第一次访问，
// 参数类型被篡改时解密路径进入投毒状态，之后的缓存读取永久自旋
type StringEncryptionPass struct{}

// NewStringEncryptionPass 创建字符串加密变换
func NewStringEncryptionPass() *StringEncryptionPass { return &StringEncryptionPass{} }

func (p *StringEncryptionPass) Name() string        { return "string_encryption" }
func (p *StringEncryptionPass) Description() string { return "加密字符串字面量" }

func (p *StringEncryptionPass) SettingsDescriptor() Settings { return Settings{} }

func (p *StringEncryptionPass) Configure(settings map[string]interface{}) error {
	_, err := p.SettingsDescriptor().Validate(settings)
	return err
}

const lcgModulus = 1 << 31

// encryptContext 一次 Apply 内的加密上下文。
// k1 密码本身不使用，作为保留量一并生成
type encryptContext struct {
	rng            *rand.Rand
	k1, k2, k3, k4 int64
	usedSeeds      map[int64]bool
}

func newEncryptContext(rng *rand.Rand) *encryptContext {
	return &encryptContext{
		rng:       rng,
		k1:        rng.Int63n(lcgModulus),
		k2:        rng.Int63n(lcgModulus),
		k3:        rng.Int63n(100000),
		k4:        rng.Int63n(256),
		usedSeeds: make(map[int64]bool),
	}
}

// nextSeed 取一个本次调用内未用过的种子
func (c *encryptContext) nextSeed() int64 {
	for {
		seed := c.rng.Int63n(900000000) + 100000000
		if !c.usedSeeds[seed] {
			c.usedSeeds[seed] = true
			return seed
		}
	}
}

// encrypt 流密码加密。状态推进与注入的 Lua 解码端逐字节一致
func (c *encryptContext) encrypt(s string, seed int64) string {
	state := (seed ^ c.k2) % lcgModulus
	prev := c.k4
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		state = (state*1103515245 + 12345 + c.k3) % lcgModulus
		rnd := state % 256
		b := int64(s[i])
		out[i] = byte(((b-rnd-prev)%256 + 256) % 256)
		prev = b
	}
	return string(out)
}

func (p *StringEncryptionPass) Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error) {
	ctx := newEncryptContext(pcfg.Rng)

	// 缓存表和解密入口绑定到随机名字，先占名再生成运行时
	cacheName := chunk.Scope.AddVariable()
	decryptName := chunk.Scope.AddVariable()

	count := 0
	chunk.RewriteExprsWithScope(func(e lua.Expr, sc *lua.Scope) lua.Expr {
		s, ok := e.(*lua.StringExpr)
		if !ok {
			return e
		}
		seed := ctx.nextSeed()
		cipher := ctx.encrypt(s.Value, seed)
		sc.AddReferenceToHigherScope(chunk.Scope, cacheName)
		sc.AddReferenceToHigherScope(chunk.Scope, decryptName)
		count++
		// 解密入口返回种子，种子就是缓存键
		return lua.NewIndex(
			lua.NewName(cacheName),
			lua.NewCall(lua.NewName(decryptName), lua.NewString(cipher), lua.NewNumber(float64(seed))))
	})
	pcfg.Stats.StringsEncrypted += count
	if count == 0 {
		return chunk, nil
	}

	runtime, err := lua.ParseFragment(p.runtimeBlock(ctx, cacheName, decryptName), chunk.Scope)
	if err != nil {
		return nil, err
	}
	chunk.Block.Stmts = append(runtime, chunk.Block.Stmts...)
	return chunk, nil
}

// runtimeBlock 生成解密运行时。目标方言是 Lua 5.1：没有位运算，
// 种子异或用逐位循环；LCG 乘法拆成 16 位两半，
// 保证所有中间量都在浮点可精确表示的整数范围内，与加密端逐字节一致
func (p *StringEncryptionPass) runtimeBlock(ctx *encryptContext, cacheName, decryptName string) string {
	return fmt.Sprintf(`
local %[1]s
local %[2]s
do
	local cache = {}
	local poisoned = false
	local function bxor(a, b)
		local r, bit = 0, 1
		while a > 0 or b > 0 do
			if a %% 2 ~= b %% 2 then
				r = r + bit
			end
			a = math.floor(a / 2)
			b = math.floor(b / 2)
			bit = bit * 2
		end
		return r
	end
	local function decode(payload, seed)
		local state = bxor(seed, %[3]d) %% 2147483648
		local prev = %[5]d
		local out = {}
		for i = 1, #payload do
			local h = math.floor(state / 65536)
			local l = state %% 65536
			state = ((h * 1103515245) %% 32768) * 65536 + l * 1103515245 + 12345 + %[4]d
			state = state %% 2147483648
			local b = (string.byte(payload, i) + state %% 256 + prev) %% 256
			out[i] = string.char(b)
			prev = b
		end
		return table.concat(out)
	end
	%[1]s = setmetatable({}, {
		__index = function(_, k)
			while poisoned do
			end
			return cache[k]
		end,
	})
	%[2]s = function(payload, seed)
		if cache[seed] ~= nil then
			return seed
		end
		if type(payload) ~= "string" or type(seed) ~= "number" then
			poisoned = true
			return seed
		end
		cache[seed] = decode(payload, seed)
		return seed
	end
end
`, cacheName, decryptName, ctx.k2, ctx.k3, ctx.k4)
}
