package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"lua-obfuscator/obfuscator"
)

func printLogo() {
	fmt.Println()
	fmt.Println("\033[1;35m██╗     ██╗   ██╗ █████╗  ██████╗ ██████╗ ███████╗\033[0m")
	fmt.Println("\033[1;35m██║     ██║   ██║██╔══██╗██╔═══██╗██╔══██╗██╔════╝\033[0m")
	fmt.Println("\033[1;35m██║     ██║   ██║███████║██║   ██║██████╔╝█████╗  \033[0m")
	fmt.Println("\033[1;35m██║     ██║   ██║██╔══██║██║   ██║██╔══██╗██╔══╝  \033[0m")
	fmt.Println("\033[1;35m███████╗╚██████╔╝██║  ██║╚██████╔╝██████╔╝██║     \033[0m")
	fmt.Println("\033[1;35m╚══════╝ ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚═╝     \033[0m")
	fmt.Println()
	fmt.Println("       \033[90mLua 代码混淆与保护工具\033[0m")
	fmt.Println("       \033[90mVersion 1.0.0\033[0m")
	fmt.Println()
}

func printUsage() {
	fmt.Println("用法: lua-obfuscator [选项] <输入文件>")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  -h                 显示帮助信息")
	fmt.Println("  -o string          输出文件 (默认: <输入文件>.obf.lua)")
	fmt.Println("  -config string     YAML 配置文件")
	fmt.Println("  -save-config string  把默认配置写到指定路径后退出")
	fmt.Println("  -seed int          随机种子 (默认: 当前时间)")
	fmt.Println("  -pretty            缩进输出 (反篡改检查会被跳过)")
	fmt.Println("  -passes string     变换列表, 逗号分隔 (默认: 全部)")
	fmt.Println("  -v                 输出调试日志")
	fmt.Println()
	fmt.Println("可用变换:")
	fmt.Printf("  %s\n", strings.Join(obfuscator.TransformNames(), ", "))
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 默认全功能混淆")
	fmt.Println("  ./lua-obfuscator script.lua")
	fmt.Println()
	fmt.Println("  # 固定种子, 只做常量抽取和字符串加密")
	fmt.Println("  ./lua-obfuscator -seed 42 -passes constant_array,string_encryption script.lua")
	fmt.Println()
	fmt.Println("  # 用配置文件")
	fmt.Println("  ./lua-obfuscator -config obf.yaml script.lua")
}

func main() {
	printLogo()

	var (
		outputPath  = flag.String("o", "", "输出文件 (默认: <输入文件>.obf.lua)")
		configPath  = flag.String("config", "", "YAML 配置文件")
		saveConfig  = flag.String("save-config", "", "把默认配置写到指定路径后退出")
		seed        = flag.Int64("seed", 0, "随机种子 (0 表示使用当前时间)")
		prettyPrint = flag.Bool("pretty", false, "缩进输出")
		passList    = flag.String("passes", "", "变换列表, 逗号分隔 (默认: 全部)")
		verbose     = flag.Bool("v", false, "输出调试日志")
		showHelp    = flag.Bool("h", false, "显示帮助信息")
	)

	flag.Usage = printUsage
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *saveConfig != "" {
		if err := obfuscator.SaveConfig(obfuscator.DefaultConfig(), *saveConfig); err != nil {
			log.Fatalf("错误: %v", err)
		}
		fmt.Printf("默认配置已写入 %s\n", *saveConfig)
		return
	}

	if *showHelp || flag.NArg() < 1 {
		printUsage()
		os.Exit(0)
	}

	inPath := flag.Arg(0)
	info, err := os.Stat(inPath)
	if err != nil {
		log.Fatalf("错误: 无法访问输入文件 %s: %v", inPath, err)
	}
	if info.IsDir() {
		log.Fatalf("错误: 输入路径必须是文件: %s", inPath)
	}

	// 配置文件优先，命令行选项覆盖其上
	cfg := obfuscator.DefaultConfig()
	if *configPath != "" {
		cfg, err = obfuscator.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("错误: %v", err)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *prettyPrint {
		cfg.PrettyPrint = true
	}
	if *passList != "" {
		var passes []obfuscator.PassConfig
		for _, name := range strings.Split(*passList, ",") {
			passes = append(passes, obfuscator.PassConfig{Name: strings.TrimSpace(name)})
		}
		cfg.Passes = passes
	}

	outPath := *outputPath
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, ".lua") + ".obf.lua"
	}

	obf, err := obfuscator.New(cfg)
	if err != nil {
		log.Fatalf("错误: %v", err)
	}

	fmt.Println("开始混淆...")
	if err := obf.ObfuscateFile(inPath, outPath); err != nil {
		log.Fatalf("错误: %v", err)
	}

	printStatistics(obf.GetStatistics())
	fmt.Printf("\n✅ 混淆完成: %s\n", outPath)
}

func printStatistics(stats obfuscator.Statistics) {
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("   混淆统计")
	fmt.Println("========================================")
	fmt.Printf("抽取常量:   %d (诱饵 %d)\n", stats.ConstantsExtracted, stats.DecoysInjected)
	fmt.Printf("展开数字:   %d\n", stats.NumbersExpanded)
	fmt.Printf("加密字符串: %d\n", stats.StringsEncrypted)
	fmt.Printf("重命名变量: %d\n", stats.VariablesRenamed)
}
