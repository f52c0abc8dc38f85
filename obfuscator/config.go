package obfuscator

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 存储混淆配置
type Config struct {
	// 随机种子，0 表示使用当前时间
	Seed int64 `yaml:"seed" mapstructure:"seed"`

	// 输出缩进格式。开启时反篡改变换会跳过自身
	PrettyPrint bool `yaml:"pretty_print" mapstructure:"pretty_print"`

	// 按顺序执行的变换及其配置
	Passes []PassConfig `yaml:"passes" mapstructure:"passes"`
}

// PassConfig 单个变换的配置
type PassConfig struct {
	Name     string                 `yaml:"name" mapstructure:"name"`
	Settings map[string]interface{} `yaml:"settings,omitempty" mapstructure:"settings"`
}

// DefaultConfig 返回启用全部变换的默认配置
func DefaultConfig() *Config {
	return &Config{
		Seed:        0,
		PrettyPrint: false,
		Passes: []PassConfig{
			{Name: "rename"},
			{Name: "constant_array", Settings: map[string]interface{}{
				"ShardCount":    2,
				"FakeConstants": 12,
			}},
			{Name: "numbers", Settings: map[string]interface{}{
				"Treshold": 0.8,
				"MaxDepth": 3,
			}},
			{Name: "string_encryption"},
			{Name: "antitamper"},
		},
	}
}

// LoadConfig 从 YAML 文件读取配置
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "读取配置文件 %s 失败", path)
	}
	cfg := DefaultConfig()
	cfg.Passes = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "解析配置文件 %s 失败", path)
	}
	if len(cfg.Passes) == 0 {
		cfg.Passes = DefaultConfig().Passes
	}
	return cfg, nil
}

// SaveConfig 把配置写成 YAML 文件
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "序列化配置失败")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "写入配置文件 %s 失败", path)
	}
	return nil
}
