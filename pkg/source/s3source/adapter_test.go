package s3source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// 真桶的读写走集成环境；这里只测不出网的部分：
// 能力声明、Key 映射、凭证失败路径、本地门禁

func TestAdapter_CapabilitiesFollowCanWrite(t *testing.T) {
	rw := NewAdapter("id-1", "bucket", Config{CanWrite: true}, nil)
	caps := rw.Capabilities()
	assert.True(t, caps.CanUpload)
	assert.True(t, caps.CanDelete)
	assert.False(t, caps.ReadOnly)

	ro := NewAdapter("id-2", "bucket", Config{CanWrite: false}, nil)
	caps = ro.Capabilities()
	assert.False(t, caps.CanUpload)
	assert.True(t, caps.ReadOnly)
	assert.True(t, caps.SupportsRescan)
}

func TestAdapter_KeyMapping(t *testing.T) {
	bare := NewAdapter("id-1", "b", Config{}, nil)
	assert.Equal(t, "garden.splat", bare.key("garden.splat"))

	prefixed := NewAdapter("id-2", "b", Config{Prefix: "scenes/splats"}, nil)
	assert.Equal(t, "scenes/splats/garden.splat", prefixed.key("garden.splat"))
}

func TestAdapter_ConnectNeedsPermissionWhenCredsFail(t *testing.T) {
	// Vault 没解锁时凭证解析会失败，要求用户介入而不是报离线
	a := NewAdapter("id-1", "bucket", Config{Bucket: "b"}, func(ctx context.Context) (string, string, error) {
		return "", "", errors.New("vault locked")
	})

	res := a.Connect(context.Background(), false)
	assert.False(t, res.Success)
	assert.True(t, res.NeedsPermission)
	assert.Equal(t, types.StateNeedsPermission, a.State())
	assert.Nil(t, a.client)
}

func TestAdapter_WriteGateBeforeClient(t *testing.T) {
	a := NewAdapter("id-1", "bucket", Config{CanWrite: false}, nil)

	// 只读凭证：连客户端都没建就要被拦下
	_, err := a.UploadAssets(context.Background(), []source.File{{Name: "x.splat"}})
	assert.ErrorIs(t, err, types.ErrReadOnly)
	assert.ErrorIs(t, a.DeleteAssets(context.Background(), []string{"x"}), types.ErrReadOnly)

	// 可写但没连上：报离线而不是 panic
	b := NewAdapter("id-2", "bucket", Config{CanWrite: true}, nil)
	_, err = b.UploadAssets(context.Background(), []source.File{{Name: "x.splat"}})
	assert.ErrorIs(t, err, types.ErrOffline)
}

func TestAdapter_ConfigRoundTrip(t *testing.T) {
	a := NewAdapter("id-1", "bucket", Config{
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		Bucket:    "splats",
		Prefix:    "prod",
		SecretRef: "s3-cred-1",
		CanWrite:  true,
	}, nil)

	raw, err := a.MarshalConfig()
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, json.Unmarshal(raw, &cfg))
	assert.Equal(t, "splats", cfg.Bucket)
	assert.Equal(t, "s3-cred-1", cfg.SecretRef)

	// 明文凭证永远不落盘：序列化结果里只有 Vault 引用
	assert.NotContains(t, string(raw), "accessKey")
}
