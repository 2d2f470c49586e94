package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_DefaultRules(t *testing.T) {
	m, err := NewMatcher(t.TempDir()) // 没有 .svignore 也要有默认规则
	require.NoError(t, err)

	assert.True(t, m.Matches(".sv"))
	assert.True(t, m.Matches("secrets.cbor"))
	assert.True(t, m.Matches(".DS_Store"))
	assert.False(t, m.Matches("garden.splat"))
}

func TestMatcher_UserRulesMergeWithDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".svignore"), []byte("drafts/\n*.bak\n"), 0644))

	m, err := NewMatcher(dir)
	require.NoError(t, err)

	// 用户规则生效
	assert.True(t, m.Matches("drafts/x.splat"))
	assert.True(t, m.Matches("scene.bak"))
	// 默认规则不被用户文件顶掉
	assert.True(t, m.Matches("secrets.cbor"))
	assert.False(t, m.Matches("scene.splat"))
}
