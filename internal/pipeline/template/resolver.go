package template

import "regexp"

// 占位符形如 {key}，key 为字母数字下划线
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Resolve 用参数填充提示词模板
// 每个 {key} 替换为 vars[key]；vars 中不存在的 key 直接删除占位符，
// 不保留字面量也不报错（有损但安全的默认行为）
func Resolve(tmpl string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := vars[key]; ok {
			return value
		}
		return ""
	})
}
