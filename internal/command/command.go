package command

import (
	"regexp"
	"strings"
)

// Command 是模型输出与派发器之间的指令令牌。
type Command string

const (
	QueryRoleData     Command = "queryRoleData"
	QuerySkillDetails Command = "querySkillDetails"
	GetProfile        Command = "getProfile"
	GetWallet         Command = "getWallet"
	GetTokens         Command = "getTokens"
	GetTokensSummary  Command = "getTokensSummary"
	None              Command = "none"
)

// All 返回全部已知指令，顺序固定。
func All() []Command {
	return []Command{
		QueryRoleData,
		QuerySkillDetails,
		GetProfile,
		GetWallet,
		GetTokens,
		GetTokensSummary,
		None,
	}
}

// Parse 将文本令牌解析为指令。none 不区分大小写，其余令牌精确匹配。
func Parse(token string) (Command, bool) {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, string(None)) {
		return None, true
	}
	for _, cmd := range All() {
		if token == string(cmd) {
			return cmd, true
		}
	}
	return "", false
}

// markerPattern 匹配自由文本中的 $execute:<token> 标记。
var markerPattern = regexp.MustCompile(`\$execute:\s*([A-Za-z]+)`)

// Extract 从自由文本中提取全部指令标记，容忍任意环绕文字，
// 未知令牌被忽略。这是结构化分类器之外的兼容路径。
func Extract(text string) []Command {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	commands := make([]Command, 0, len(matches))
	for _, match := range matches {
		if cmd, ok := Parse(match[1]); ok {
			commands = append(commands, cmd)
		}
	}
	return commands
}

// HasMarker 判断文本中是否出现任何指令标记（无论令牌是否已知）。
func HasMarker(text string) bool {
	return markerPattern.MatchString(text)
}
