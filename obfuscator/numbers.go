package obfuscator

import (
	"math"
	"math/rand"

	"lua-obfuscator/lua"
)

// NumericExpansionPass 把数字字面量替换成等值的随机算术表达式树。
// 每个生成器先做回代校验，校验不过就换下一个，全部失败保留原字面量
type NumericExpansionPass struct {
	treshold         float64
	internalTreshold float64
	maxDepth         int
}

// NewNumericExpansionPass 创建数字展开变换
func NewNumericExpansionPass() *NumericExpansionPass {
	return &NumericExpansionPass{}
}

func (p *NumericExpansionPass) Name() string        { return "numbers" }
func (p *NumericExpansionPass) Description() string { return "展开数字字面量" }

func (p *NumericExpansionPass) SettingsDescriptor() Settings {
	return Settings{
		"Treshold":         {Type: TypeNumber, Default: 0.8, Min: 0, Max: 1},
		"InternalTreshold": {Type: TypeNumber, Default: 0.5, Min: 0, Max: 1},
		"MaxDepth":         {Type: TypeNumber, Default: 3, Min: 1, Max: 8},
	}
}

func (p *NumericExpansionPass) Configure(settings map[string]interface{}) error {
	bound, err := p.SettingsDescriptor().Validate(settings)
	if err != nil {
		return err
	}
	p.treshold = asNumber(bound, "Treshold")
	p.internalTreshold = asNumber(bound, "InternalTreshold")
	p.maxDepth = asInt(bound, "MaxDepth")
	return nil
}

func (p *NumericExpansionPass) Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error) {
	rng := pcfg.Rng
	chunk.RewriteExprs(func(e lua.Expr) lua.Expr {
		n, ok := e.(*lua.NumberExpr)
		if !ok {
			return e
		}
		if rng.Float64() > p.treshold {
			return e
		}
		v, err := lua.ParseNumber(n.Value)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return e
		}
		expr := p.expand(rng, v, 0)
		if _, still := expr.(*lua.NumberExpr); still {
			return e
		}
		pcfg.Stats.NumbersExpanded++
		// 0.4 概率再包一层 (x + k) - k 的视觉噪声。
		// 加减必须精确抵消，否则放弃包裹
		if rng.Float64() < 0.4 {
			k := float64(1 + rng.Intn(255))
			if (v+k)-k == v {
				expr = lua.NewBinary("-",
					lua.NewBinary("+", expr, lua.NewNumber(k)),
					lua.NewNumber(k))
			}
		}
		return expr
	})
	return chunk, nil
}

// generator 尝试把 value 改写成一棵等值表达式树，失败返回 nil
type generator func(p *NumericExpansionPass, rng *rand.Rand, value float64, depth int) lua.Expr

var generators []generator

// 在 init 中填充以避免 generators 与 expand 之间的初始化循环
func init() {
	generators = []generator{
		(*NumericExpansionPass).genAdd,
		(*NumericExpansionPass).genSub,
		(*NumericExpansionPass).genMul,
		(*NumericExpansionPass).genFloorDiv,
		(*NumericExpansionPass).genMod,
		(*NumericExpansionPass).genPow,
	}
}

// expand 递归展开。超过深度上限或内部概率判定不通过时落回字面量
func (p *NumericExpansionPass) expand(rng *rand.Rand, value float64, depth int) lua.Expr {
	if depth > p.maxDepth {
		return lua.NewNumber(value)
	}
	if depth > 0 && rng.Float64() > p.internalTreshold {
		return lua.NewNumber(value)
	}

	catalog := make([]generator, len(generators))
	copy(catalog, generators)
	rng.Shuffle(len(catalog), func(i, j int) {
		catalog[i], catalog[j] = catalog[j], catalog[i]
	})
	for _, gen := range catalog {
		if expr := gen(p, rng, value, depth); expr != nil {
			return expr
		}
	}
	return lua.NewNumber(value)
}

func (p *NumericExpansionPass) genAdd(rng *rand.Rand, value float64, depth int) lua.Expr {
	v2 := float64(rng.Intn(1000) + 1)
	diff := value - v2
	// 经过十进制文本往返后必须精确还原
	if rt, err := lua.ParseNumber(lua.FormatNumber(diff)); err != nil || rt+v2 != value {
		return nil
	}
	return lua.NewBinary("+", p.expand(rng, diff, depth+1), p.expand(rng, v2, depth+1))
}

func (p *NumericExpansionPass) genSub(rng *rand.Rand, value float64, depth int) lua.Expr {
	v2 := float64(rng.Intn(1000) + 1)
	sum := value + v2
	if rt, err := lua.ParseNumber(lua.FormatNumber(sum)); err != nil || rt-v2 != value {
		return nil
	}
	return lua.NewBinary("-", p.expand(rng, sum, depth+1), p.expand(rng, v2, depth+1))
}

func (p *NumericExpansionPass) genMul(rng *rand.Rand, value float64, depth int) lua.Expr {
	if value == 0 {
		return lua.NewNumber(0)
	}
	factor := float64(rng.Intn(1000) + 1)
	base := value / factor
	// 乘回去必须精确还原。前面的变换注入的运行时代码也会被
	// 本变换处理，其中的下标和位宽常量容不得任何浮点误差
	if base*factor != value {
		return nil
	}
	return lua.NewBinary("*", p.expand(rng, base, depth+1), p.expand(rng, factor, depth+1))
}

// genFloorDiv 只接受整数值，非整数经向下取整无法还原。
// 目标方言没有整除运算符，用 math.floor 包除法
func (p *NumericExpansionPass) genFloorDiv(rng *rand.Rand, value float64, depth int) lua.Expr {
	if !isIntegral(value) {
		return nil
	}
	divisor := float64(rng.Intn(50) + 1)
	numerator := value * divisor
	if !isIntegral(numerator) || math.Floor(numerator/divisor) != value {
		return nil
	}
	div := lua.NewBinary("/", p.expand(rng, numerator, depth+1), p.expand(rng, divisor, depth+1))
	return lua.NewCall(lua.NewDotIndex(lua.NewName("math"), "floor"), div)
}

func (p *NumericExpansionPass) genMod(rng *rand.Rand, value float64, depth int) lua.Expr {
	if !isIntegral(value) || value < 0 || value >= 1e9 {
		return nil
	}
	// 模数取在 value 之上，base = value + mod*k，则 base % mod == value
	mod := value + float64(rng.Intn(100)+1)
	base := value + mod*float64(rng.Intn(10)+1)
	if !isIntegral(base) || math.Mod(base, mod) != value {
		return nil
	}
	return lua.NewBinary("%", p.expand(rng, base, depth+1), p.expand(rng, mod, depth+1))
}

func (p *NumericExpansionPass) genPow(rng *rand.Rand, value float64, depth int) lua.Expr {
	if value == 0 {
		return lua.NewNumber(0)
	}
	exp := float64(rng.Intn(6) + 1)
	base := math.Round(math.Pow(value, 1/exp))
	if math.Pow(base, exp) != value {
		return nil
	}
	// 指数本身不再递归展开
	return lua.NewBinary("^", p.expand(rng, base, depth+1), lua.NewNumber(exp))
}
