package obfuscator

import (
	"fmt"

	"lua-obfuscator/lua"
)

// AntiTamperPass 在程序最前面注入一个运行时守卫块：
// 原生函数完整性、字节码稳定性、调试计时、调用栈一致性、
// 环境指纹五类检查，任何一项失败都进入延迟触发的死循环。
// 缩进输出会破坏调用栈一致性检查，此时整个变换跳过并告警
type AntiTamperPass struct{}

// NewAntiTamperPass 创建反篡改变换
func NewAntiTamperPass() *AntiTamperPass { return &AntiTamperPass{} }

func (p *AntiTamperPass) Name() string        { return "antitamper" }
func (p *AntiTamperPass) Description() string { return "注入反篡改守卫" }

func (p *AntiTamperPass) SettingsDescriptor() Settings { return Settings{} }

func (p *AntiTamperPass) Configure(settings map[string]interface{}) error {
	_, err := p.SettingsDescriptor().Validate(settings)
	return err
}

func (p *AntiTamperPass) Apply(chunk *lua.Chunk, pcfg *PipelineConfig) (*lua.Chunk, error) {
	if pcfg.PrettyPrint {
		pcfg.Log.Warningf("输出为缩进格式，反篡改检查无法工作，跳过该变换")
		return chunk, nil
	}

	secret := fmt.Sprintf("g%09d", pcfg.Rng.Int63n(1000000000))
	guard, err := lua.ParseFragment(p.guardBlock(secret), chunk.Scope)
	if err != nil {
		return nil, err
	}
	chunk.Block.Stmts = append(guard, chunk.Block.Stmts...)
	return chunk, nil
}

// guardBlock 生成守卫块。宿主环境可能缺少 string.dump 或
// debug 库的部分函数，每项检查都先探测可用性，
// 缺失的能力按通过处理，避免在合法环境里误伤
func (p *AntiTamperPass) guardBlock(secret string) string {
	return fmt.Sprintf(`
do
	local valid = true

	local function isnative(f)
		if type(f) ~= "function" then
			return false
		end
		if type(debug) == "table" and type(debug.getinfo) == "function" then
			local ok, info = pcall(debug.getinfo, f)
			if ok and type(info) == "table" then
				if info.what == "Lua" or info.what == "main" then
					return false
				end
				if type(info.nups) == "number" and info.nups ~= 0 then
					return false
				end
			end
		end
		if type(string) == "table" and type(string.dump) == "function" then
			if pcall(string.dump, f) then
				return false
			end
		end
		return true
	end

	if not isnative(pcall) then
		valid = false
	end
	if not isnative(string.char) then
		valid = false
	end
	if type(debug) == "table" and debug.getinfo ~= nil and not isnative(debug.getinfo) then
		valid = false
	end
	if string.dump ~= nil and not isnative(string.dump) then
		valid = false
	end

	local function marker()
		return 408
	end
	if type(string.dump) == "function" then
		local ok1, d1 = pcall(string.dump, marker)
		local ok2, d2 = pcall(string.dump, marker)
		if ok1 and ok2 and type(d1) == "string" and type(d2) == "string" then
			local function checksum(s)
				local h = 0
				for i = 1, #s do
					h = (h + string.byte(s, i) * i) %% 16777213
				end
				return h
			end
			if checksum(d1) ~= checksum(d2) then
				valid = false
			end
		end
	end

	if type(debug) == "table" and type(debug.sethook) == "function" and type(os) == "table" and type(os.clock) == "function" then
		local counter = 0
		local installed = pcall(debug.sethook, function()
			counter = counter + 1
		end, "", 40)
		local before = os.clock()
		local spin = 0
		for i = 1, 50000 do
			spin = spin + i
		end
		local elapsed = os.clock() - before
		if installed then
			pcall(debug.sethook)
		end
		if elapsed > 1 then
			valid = false
		end
	end

	if type(debug) == "table" and type(debug.traceback) == "function" then
		local ok, trace = pcall(debug.traceback, "%[1]s", 1)
		if ok and type(trace) == "string" then
			local first = string.match(trace, "^[^\010]*")
			if first ~= "%[1]s" then
				valid = false
			end
			local line
			for m in string.gmatch(trace, ":(%%d+):") do
				if line == nil then
					line = m
				elseif line ~= m then
					valid = false
				end
			end
		end
	end

	if getmetatable(_G) ~= nil then
		valid = false
	end
	if rawget(_G, "_ENV") ~= nil then
		valid = false
	end

	if not valid then
		local a, b = 1, 1
		while true do
			a, b = b, a + b
			if a > 100000 and a %% 2584 == 0 then
				error("integrity violation", 0)
			end
		end
	end
	while not valid do
	end
end
`, secret)
}
