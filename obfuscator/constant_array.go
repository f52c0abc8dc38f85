package obfuscator

import (
	"encoding/base64"
	"fmt"
	"strings"

	"lua-obfuscator/lua"
)

// ConstantExtractionPass 把字符串常量抽取到若干分片数组中。
// 常量先与 XorKey 异或再用打乱的 64 字符表编码，数组里掺入诱饵，
// 引用处换成带掩码偏移的下标访问，运行时解码块在程序最前面
// 把数组元素原地还原
type ConstantExtractionPass struct {
	shardCount    int
	fakeConstants int
	xorKey        byte
	encoding      string
	shuffle       bool
}

// NewConstantExtractionPass 创建常量抽取变换
func NewConstantExtractionPass() *ConstantExtractionPass {
	return &ConstantExtractionPass{}
}

func (p *ConstantExtractionPass) Name() string        { return "constant_array" }
func (p *ConstantExtractionPass) Description() string { return "抽取字符串常量到分片数组" }

func (p *ConstantExtractionPass) SettingsDescriptor() Settings {
	return Settings{
		"ShardCount":    {Type: TypeNumber, Default: 2, Min: 1, Max: 8},
		"FakeConstants": {Type: TypeNumber, Default: 12, Min: 0, Max: 128},
		"XorKey":        {Type: TypeNumber, Default: 90, Min: 1, Max: 255},
		"Encoding":      {Type: TypeEnum, Default: "base64", Enum: []string{"base64"}},
		"Shuffle":       {Type: TypeBoolean, Default: true},
	}
}

func (p *ConstantExtractionPass) Configure(settings map[string]interface{}) error {
	bound, err := p.SettingsDescriptor().Validate(settings)
	if err != nil {
		return err
	}
	p.shardCount = asInt(bound, "ShardCount")
	p.fakeConstants = asInt(bound, "FakeConstants")
	p.xorKey = byte(asInt(bound, "XorKey"))
	p.encoding = asString(bound, "Encoding")
	p.shuffle = asBool(bound, "Shuffle")
	return nil
}

// shardElement 分片数组中的一个元素。realIndex 为 0 表示诱饵
type shardElement struct {
	expr      lua.Expr
	realIndex int
}

func (p *ConstantExtractionPass) Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error) {
	rng := pcfg.Rng

	alphabet := stdBase64Alphabet
	if p.shuffle {
		alphabet = shuffledAlphabet(rng)
	}
	enc := base64.NewEncoding(alphabet)

	// 第一遍：收集常量，编码去重，记录插入顺序
	indexByEncoded := make(map[string]int)
	var table []string
	chunk.RewriteExprs(func(e lua.Expr) lua.Expr {
		s, ok := e.(*lua.StringExpr)
		if !ok {
			return e
		}
		encoded := enc.EncodeToString(xorBytes(s.Value, p.xorKey))
		if _, seen := indexByEncoded[encoded]; !seen {
			table = append(table, encoded)
			indexByEncoded[encoded] = len(table)
		}
		return e
	})
	if len(table) == 0 {
		pcfg.Log.Debugf("没有字符串常量，跳过")
		return chunk, nil
	}

	// 真实常量按固定公式落入分片
	shards := make([][]shardElement, p.shardCount)
	for i, encoded := range table {
		index := i + 1
		shard := (index - 1) % p.shardCount
		shards[shard] = append(shards[shard], shardElement{
			expr:      lua.NewString(encoded),
			realIndex: index,
		})
	}

	// 诱饵独立随机选分片，内容是随机数字或随机字节的编码
	for i := 0; i < p.fakeConstants; i++ {
		shard := rng.Intn(p.shardCount)
		var decoy lua.Expr
		if rng.Intn(2) == 0 {
			decoy = lua.NewNumber(float64(rng.Intn(65536)))
		} else {
			junk := randomBytes(rng, 3+rng.Intn(10))
			decoy = lua.NewString(enc.EncodeToString(xorBytes(junk, p.xorKey)))
		}
		shards[shard] = append(shards[shard], shardElement{expr: decoy})
	}
	pcfg.Stats.DecoysInjected += p.fakeConstants

	// 打乱每个分片并记录真实常量的最终位置
	posByIndex := make(map[string][2]int, len(table))
	for si := range shards {
		rng.Shuffle(len(shards[si]), func(a, b int) {
			shards[si][a], shards[si][b] = shards[si][b], shards[si][a]
		})
		for pos, el := range shards[si] {
			if el.realIndex > 0 {
				posByIndex[table[el.realIndex-1]] = [2]int{si, pos + 1}
			}
		}
	}

	// 分片变量与下标掩码
	names := make([]string, p.shardCount)
	for i := range names {
		names[i] = chunk.Scope.AddVariable()
	}
	mask := 1 + rng.Intn(4095)

	// 第二遍：把字面量换成掩码下标访问
	count := 0
	chunk.RewriteExprsWithScope(func(e lua.Expr, sc *lua.Scope) lua.Expr {
		s, ok := e.(*lua.StringExpr)
		if !ok {
			return e
		}
		encoded := enc.EncodeToString(xorBytes(s.Value, p.xorKey))
		loc := posByIndex[encoded]
		name := names[loc[0]]
		sc.AddReferenceToHigherScope(chunk.Scope, name)
		// 掩码只是源代码层面的噪声，加减对称抵消
		key := lua.NewBinary("-",
			lua.NewBinary("+", lua.NewNumber(float64(loc[1])), lua.NewNumber(float64(mask))),
			lua.NewNumber(float64(mask)))
		count++
		return lua.NewIndex(lua.NewName(name), key)
	})
	pcfg.Stats.ConstantsExtracted += count

	// 分片声明 + 解码块放到程序最前面
	var stmts []lua.Stmt
	for i, name := range names {
		fields := make([]lua.TableField, len(shards[i]))
		for j, el := range shards[i] {
			fields[j] = lua.TableField{Value: el.expr}
		}
		stmts = append(stmts, &lua.LocalStmt{
			Names: []string{name},
			Exprs: []lua.Expr{&lua.TableExpr{Fields: fields}},
		})
	}

	decode, err := lua.ParseFragment(p.decodeBlock(alphabet, names), chunk.Scope)
	if err != nil {
		return nil, err
	}
	if do, ok := decode[0].(*lua.DoStmt); ok {
		for _, name := range names {
			do.Body.Scope.AddReferenceToHigherScope(chunk.Scope, name)
		}
	}
	stmts = append(stmts, decode...)
	chunk.Block.Stmts = append(stmts, chunk.Block.Stmts...)
	return chunk, nil
}

// decodeBlock 生成运行时解码块。目标方言是 Lua 5.1，
// 没有位运算符，异或用逐位循环实现
func (p *ConstantExtractionPass) decodeBlock(alphabet string, shardNames []string) string {
	return fmt.Sprintf(`
do
	local alphabet = "%s"
	local key = %d
	local lookup = {}
	for i = 1, #alphabet do
		lookup[string.sub(alphabet, i, i)] = i - 1
	end
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
	local function decode(s)
		local out = {}
		local buffer = 0
		local bits = 0
		for i = 1, #s do
			local v = lookup[string.sub(s, i, i)]
			if v ~= nil then
				buffer = buffer * 64 + v
				bits = bits + 6
				if bits >= 8 then
					bits = bits - 8
					local slice = 2 ^ bits
					out[#out + 1] = string.char(bxor(math.floor(buffer / slice), key))
					buffer = buffer %% slice
				end
			end
		end
		return table.concat(out)
	end
	local arrays = {%s}
	for i = 1, #arrays do
		local t = arrays[i]
		for j = 1, #t do
			if type(t[j]) == "string" then
				t[j] = decode(t[j])
			end
		end
	end
end
`, alphabet, p.xorKey, strings.Join(shardNames, ", "))
}
