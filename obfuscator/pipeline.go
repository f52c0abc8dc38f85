package obfuscator

import (
	"math/rand"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"lua-obfuscator/lua"
)

// transformRegistry 注册名 -> 变换构造函数
var transformRegistry = map[string]func() Transform{
	"rename":            func() Transform { return NewVariableRenamePass() },
	"constant_array":    func() Transform { return NewConstantExtractionPass() },
	"numbers":           func() Transform { return NewNumericExpansionPass() },
	"string_encryption": func() Transform { return NewStringEncryptionPass() },
	"antitamper":        func() Transform { return NewAntiTamperPass() },
}

// NewTransform 按注册名创建变换
func NewTransform(name string) (Transform, error) {
	ctor, ok := transformRegistry[name]
	if !ok {
		return nil, errors.Errorf("未知的变换 %q", name)
	}
	return ctor(), nil
}

// TransformNames 返回全部注册名，按字典序
func TransformNames() []string {
	names := make([]string, 0, len(transformRegistry))
	for name := range transformRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pipeline 按配置顺序执行变换，独占持有语法树
type Pipeline struct {
	transforms []Transform
	pcfg       *PipelineConfig
}

// NewPipeline 根据配置构建管线。所有变换先完成配置校验，
// 任何一个配置非法都会在树被改动之前报错
func NewPipeline(cfg *Config) (*Pipeline, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	pcfg := &PipelineConfig{
		Rng:         rand.New(rand.NewSource(seed)),
		PrettyPrint: cfg.PrettyPrint,
		Log:         commonlog.GetLogger("obfuscator"),
		Stats:       &Statistics{},
	}

	var transforms []Transform
	for _, pc := range cfg.Passes {
		t, err := NewTransform(pc.Name)
		if err != nil {
			return nil, err
		}
		if err := t.Configure(pc.Settings); err != nil {
			return nil, errors.Wrapf(err, "变换 %q 配置失败", pc.Name)
		}
		transforms = append(transforms, t)
	}

	return &Pipeline{transforms: transforms, pcfg: pcfg}, nil
}

// Run 把树依次交给每个变换。单线程顺序执行，
// 每个变换完整消费树之后才轮到下一个
func (p *Pipeline) Run(chunk *lua.Chunk) (*lua.Chunk, error) {
	for i, t := range p.transforms {
		p.pcfg.Log.Infof("阶段 %d/%d: %s", i+1, len(p.transforms), t.Description())
		out, err := t.Apply(chunk, p.pcfg)
		if err != nil {
			return nil, errors.Wrapf(err, "变换 %q 执行失败", t.Name())
		}
		chunk = out
	}
	return chunk, nil
}

// Statistics 返回累计统计
func (p *Pipeline) Statistics() Statistics {
	return *p.pcfg.Stats
}
