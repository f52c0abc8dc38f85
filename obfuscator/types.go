package obfuscator

import (
	"math/rand"

	"github.com/tliron/commonlog"

	"lua-obfuscator/lua"
)

// Transform 是所有混淆遍实现的公共契约。
// 先 Configure 绑定配置，再 Apply 改写语法树；
// Apply 借用并归还管线独占持有的树
type Transform interface {
	// Name 返回变换的注册名
	Name() string
	// Description 返回一句话说明
	Description() string
	// SettingsDescriptor 返回该变换声明的全部配置项
	SettingsDescriptor() Settings
	// Configure 校验并绑定配置，越界或未知配置立即报错
	Configure(settings map[string]interface{}) error
	// Apply 对语法树做一次完整改写
	Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error)
}

// PipelineConfig 管线在各变换之间共享的上下文
type PipelineConfig struct {
	// 共享随机源，种子由配置决定
	Rng *rand.Rand

	// 输出是否为缩进格式。反篡改变换在缩进输出下跳过自身
	PrettyPrint bool

	// 日志
	Log commonlog.Logger

	// 各变换累计的统计信息
	Stats *Statistics
}

// Statistics 存储混淆统计信息
type Statistics struct {
	ConstantsExtracted int // 提取的字符串常量数
	DecoysInjected     int // 注入的诱饵常量数
	NumbersExpanded    int // 展开的数字字面量数
	StringsEncrypted   int // 加密的字符串字面量数
	VariablesRenamed   int // 重命名的局部变量数
}
