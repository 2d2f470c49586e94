package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 判断本地目录导入时哪些文件应该被跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 数据源目录 (用于查找 .svignore 文件)
func NewMatcher(rootPath string) (*Matcher, error) {
	// 系统级默认规则，强制生效
	defaultRules := []string{
		".sv", // 应用状态目录，导入它会递归套娃

		// 安全：绝不把密钥类文件当资产搬进数据源
		"secrets.cbor",
		"config.yaml",
		".env",

		// 常见垃圾文件
		".DS_Store",
		"Thumbs.db",
	}

	var ignorer *gitignore.GitIgnore
	var err error

	ignoreFilePath := filepath.Join(rootPath, ".svignore")
	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		// 用户规则 + 默认规则合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	} else {
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}
	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 返回 true 表示应该跳过该路径
// path 是相对数据源目录的相对路径
func (m *Matcher) Matches(path string) bool {
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
