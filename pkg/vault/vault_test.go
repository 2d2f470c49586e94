package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/types"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := Open(filepath.Join(t.TempDir(), "secrets.cbor"))
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()

	// 首次加密隐式建立 Vault 密码
	require.NoError(t, v.Encrypt(s, "s3-main", "AKIA123:secret456", "hunter2"))
	assert.True(t, v.HasPassword())

	// 正确密码解锁 + 解密还原
	s2 := NewSession()
	require.NoError(t, v.Unlock(s2, "hunter2"))
	plain, err := v.Decrypt(s2, "s3-main")
	require.NoError(t, err)
	assert.Equal(t, "AKIA123:secret456", plain)
}

func TestVault_WrongPassword(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()
	require.NoError(t, v.Encrypt(s, "db-pass", "pg-secret", "correct"))

	// 错误密码：统一的 mismatch 错误，且密文不受影响
	before := v.records["db-pass"]

	s2 := NewSession()
	err := v.Unlock(s2, "wrong")
	assert.ErrorIs(t, err, types.ErrVaultMismatch)
	assert.False(t, s2.Unlocked())

	assert.Equal(t, before, v.records["db-pass"])

	// 之后用对的密码照样能解 (没有锁定惩罚)
	require.NoError(t, v.Unlock(s2, "correct"))
}

func TestVault_SessionReuse(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()
	require.NoError(t, v.Encrypt(s, "first", "v1", "pw"))

	// 会话已解锁：后续加密不用再给密码
	require.NoError(t, v.Encrypt(s, "second", "v2", ""))

	plain, err := v.Decrypt(s, "second")
	require.NoError(t, err)
	assert.Equal(t, "v2", plain)
}

func TestVault_LockedSession(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()
	require.NoError(t, v.Encrypt(s, "x", "y", "pw"))

	// Clear 之后就是冷会话，没密码什么都做不了
	s.Clear()
	_, err := v.Decrypt(s, "x")
	assert.ErrorIs(t, err, ErrLocked)

	err = v.Encrypt(s, "z", "w", "")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestVault_UniqueSalts(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()
	require.NoError(t, v.Encrypt(s, "a", "same-plaintext", "pw"))
	require.NoError(t, v.Encrypt(s, "b", "same-plaintext", ""))

	// Salt 每条独立，同明文也得出不同密文
	assert.NotEqual(t, v.records["a"].Salt, v.records["b"].Salt)
	assert.NotEqual(t, v.records["a"].Ciphertext, v.records["b"].Ciphertext)
}

func TestVault_PersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.cbor")

	v1, err := Open(path)
	require.NoError(t, err)
	s := NewSession()
	require.NoError(t, v1.Encrypt(s, "k", "v", "pw"))

	// 重新打开 (模拟重启)，密文还在，解锁状态不在
	v2, err := Open(path)
	require.NoError(t, err)
	assert.True(t, v2.HasPassword())

	s2 := NewSession()
	require.NoError(t, v2.Unlock(s2, "pw"))
	plain, err := v2.Decrypt(s2, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", plain)
}

func TestVault_Reset(t *testing.T) {
	v := newTestVault(t)
	s := NewSession()
	require.NoError(t, v.Encrypt(s, "k", "v", "pw"))

	// 密码丢了只能 Reset，所有记录一起消失
	require.NoError(t, v.Reset())
	assert.False(t, v.HasPassword())

	s2 := NewSession()
	err := v.Unlock(s2, "pw")
	assert.Error(t, err)
}
