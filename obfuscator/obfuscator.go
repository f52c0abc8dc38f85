package obfuscator

import (
	"os"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"lua-obfuscator/lua"
)

// Obfuscator 是混淆器的主结构体
type Obfuscator struct {
	config   *Config
	pipeline *Pipeline
	log      commonlog.Logger
}

// New 创建混淆器并完成全部变换的配置校验
func New(cfg *Config) (*Obfuscator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	return &Obfuscator{
		config:   cfg,
		pipeline: pipeline,
		log:      commonlog.GetLogger("obfuscator"),
	}, nil
}

// ObfuscateSource 混淆一段 Lua 源代码并返回结果文本
func (o *Obfuscator) ObfuscateSource(src, name string) (string, error) {
	o.log.Infof("解析 %s ...", name)
	chunk, err := lua.Parse(src, name)
	if err != nil {
		return "", errors.Wrap(err, "解析失败")
	}

	// 所有变换注入的标识符统一从这里取名
	gen := NewNaturalNameGenerator(o.pipeline.pcfg.Rng)
	chunk.Scope.SetNameSource(gen.Next)

	chunk, err = o.pipeline.Run(chunk)
	if err != nil {
		return "", err
	}

	o.log.Infof("生成输出 ...")
	return lua.Print(chunk, o.config.PrettyPrint), nil
}

// ObfuscateFile 混淆单个文件
func (o *Obfuscator) ObfuscateFile(inPath, outPath string) error {
	src, err := os.ReadFile(inPath)
	if err != nil {
		return errors.Wrapf(err, "读取 %s 失败", inPath)
	}
	out, err := o.ObfuscateSource(string(src), inPath)
	if err != nil {
		return errors.Wrapf(err, "混淆 %s 失败", inPath)
	}
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return errors.Wrapf(err, "写入 %s 失败", outPath)
	}

	stats := o.GetStatistics()
	o.log.Infof("完成: 常量 %d (诱饵 %d), 数字 %d, 字符串 %d, 变量 %d",
		stats.ConstantsExtracted, stats.DecoysInjected,
		stats.NumbersExpanded, stats.StringsEncrypted, stats.VariablesRenamed)
	return nil
}

// GetStatistics 返回混淆统计信息
func (o *Obfuscator) GetStatistics() Statistics {
	return o.pipeline.Statistics()
}
