package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/source"
)

// pngBytes 是最小的 PNG magic 头，足够 magic-bytes 嗅探认出图片
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestClassify_AssetBatch(t *testing.T) {
	kind, err := Classify([]source.File{
		{Name: "a.splat", Data: []byte("x")},
		{Name: "b.PLY", Data: []byte("x")}, // 扩展名大小写不敏感
		{Name: "c.ksplat", Data: []byte("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, BatchAssets, kind)
}

func TestClassify_ImageBatch(t *testing.T) {
	kind, err := Classify([]source.File{
		{Name: "shot1.png", Data: pngBytes},
		{Name: "shot2.png", Data: pngBytes},
	})
	require.NoError(t, err)
	assert.Equal(t, BatchImages, kind)
}

func TestClassify_MixedBatchRejected(t *testing.T) {
	_, err := Classify([]source.File{
		{Name: "a.splat", Data: []byte("x")},
		{Name: "shot.png", Data: pngBytes},
	})
	assert.ErrorIs(t, err, ErrMixedBatch)
}

func TestClassify_UnsupportedFile(t *testing.T) {
	_, err := Classify([]source.File{{Name: "notes.txt", Data: []byte("hello")}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notes.txt")
}

func TestClassify_EmptyBatch(t *testing.T) {
	_, err := Classify(nil)
	assert.Error(t, err)
}
