package importer

import (
	"errors"
	"fmt"

	"github.com/h2non/filetype"

	"splatvault/pkg/source"
	"splatvault/pkg/source/dirsource"
)

// BatchKind 是一次拖放批次的分类结果
type BatchKind int

const (
	BatchAssets BatchKind = iota // 已经是受支持的 3D 格式，直接入库
	BatchImages                  // 图片，要走外部 GPU 转换任务
)

var ErrMixedBatch = errors.New("mixed batch: drop either assets or images, not both")

// Classify 把输入文件分成资产批次或图片批次
// 判定顺序：先看扩展名是不是 3D 资产，再用 magic bytes 嗅探图片
// 一次手势里两类混着来直接拒绝，不做部分处理
func Classify(files []source.File) (BatchKind, error) {
	if len(files) == 0 {
		return 0, errors.New("empty batch")
	}

	assets, images := 0, 0
	for _, f := range files {
		switch {
		case dirsource.IsAssetFile(f.Name):
			assets++
		case filetype.IsImage(f.Data):
			images++
		default:
			return 0, fmt.Errorf("unsupported file: %s", f.Name)
		}
	}

	if assets > 0 && images > 0 {
		return 0, ErrMixedBatch
	}
	if images > 0 {
		return BatchImages, nil
	}
	return BatchAssets, nil
}
