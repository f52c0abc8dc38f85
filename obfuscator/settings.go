package obfuscator

import (
	"github.com/pkg/errors"
)

// 配置项类型
const (
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
)

// Setting 描述变换的一个配置项：类型、默认值和取值范围
type Setting struct {
	Type    string
	Default interface{}
	Min     float64  // 数值下界（仅 number）
	Max     float64  // 数值上界（仅 number）
	Enum    []string // 合法取值（仅 enum）
}

// Settings 配置项名 -> 描述
type Settings map[string]Setting

// Validate 校验用户提供的配置并与默认值合并。
// 未知配置项、类型不符、数值越界、枚举值非法都会立即报错，
// 错误信息带上配置项名和收到的值。越界的值不会被悄悄截断
func (s Settings) Validate(supplied map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s))
	for name, def := range s {
		out[name] = def.Default
	}
	for name, value := range supplied {
		def, ok := s[name]
		if !ok {
			return nil, errors.Errorf("未知的配置项 %q", name)
		}
		switch def.Type {
		case TypeNumber:
			v, ok := toNumber(value)
			if !ok {
				return nil, errors.Errorf("配置项 %q 需要数值，收到 %v", name, value)
			}
			if v < def.Min || v > def.Max {
				return nil, errors.Errorf("配置项 %q 的值 %v 超出范围 [%v, %v]", name, value, def.Min, def.Max)
			}
			out[name] = v
		case TypeBoolean:
			v, ok := value.(bool)
			if !ok {
				return nil, errors.Errorf("配置项 %q 需要布尔值，收到 %v", name, value)
			}
			out[name] = v
		case TypeEnum:
			v, ok := value.(string)
			if !ok {
				return nil, errors.Errorf("配置项 %q 需要字符串，收到 %v", name, value)
			}
			found := false
			for _, e := range def.Enum {
				if e == v {
					found = true
					break
				}
			}
			if !found {
				return nil, errors.Errorf("配置项 %q 的值 %q 不在合法取值 %v 中", name, v, def.Enum)
			}
			out[name] = v
		default:
			return nil, errors.Errorf("配置项 %q 的类型描述 %q 非法", name, def.Type)
		}
	}
	return out, nil
}

// toNumber 把 YAML/JSON 反序列化可能产生的各种数值类型归一为 float64
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func asNumber(m map[string]interface{}, key string) float64 {
	v, _ := toNumber(m[key])
	return v
}

func asInt(m map[string]interface{}, key string) int {
	return int(asNumber(m, key))
}

func asBool(m map[string]interface{}, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func asString(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}
