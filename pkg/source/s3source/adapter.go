// Package s3source 实现对象存储后端 A (S3 兼容 API)
package s3source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"splatvault/pkg/source"
	"splatvault/pkg/types"
)

// Config 是落盘配置。Access Key 本体不在这里 —— 只存 Vault 的引用
type Config struct {
	Endpoint string `json:"endpoint,omitempty"` // MinIO 等自建服务用
	Region   string `json:"region"`
	Bucket   string `json:"bucket"`
	Prefix   string `json:"prefix,omitempty"` // 资产所在的 Key 前缀
	// SecretRef 指向 Vault 里的一条记录，内容是 "accessKeyID:secretAccessKey"
	SecretRef string `json:"secret_ref"`
	// CanWrite=false 表示凭证只有读权限，上传必须在本地就被拦截
	CanWrite bool `json:"can_write"`
}

// CredentialFunc 在连接时解析凭证 (通常由 Vault 提供)
// 延迟解析：配置落盘时永远拿不到明文
type CredentialFunc func(ctx context.Context) (accessKey, secretKey string, err error)

// Adapter 实现 source.Source；CanWrite 时额外实现 Uploader + Deleter
type Adapter struct {
	*source.Conn
	id    types.SourceID
	name  string
	cfg   Config
	creds CredentialFunc

	client *s3.Client
}

func NewAdapter(id types.SourceID, name string, cfg Config, creds CredentialFunc) *Adapter {
	return &Adapter{
		Conn:  source.NewConn(),
		id:    id,
		name:  name,
		cfg:   cfg,
		creds: creds,
	}
}

func (a *Adapter) ID() types.SourceID     { return a.id }
func (a *Adapter) Type() types.SourceType { return types.TypeS3Bucket }
func (a *Adapter) Name() string           { return a.name }

func (a *Adapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		CanList:        true,
		CanUpload:      a.cfg.CanWrite,
		CanDelete:      a.cfg.CanWrite,
		ReadOnly:       !a.cfg.CanWrite,
		SupportsRescan: true,
	}
}

// Connect 构建客户端并用 HeadBucket 验证连通性
// 网络失败归类为 Offline (可降级到缓存)，不作为 error 抛出
func (a *Adapter) Connect(ctx context.Context, forceInteractive bool) types.ConnectResult {
	if a.IsConnected() {
		return types.ConnectResult{Success: true} // 幂等
	}
	a.SetState(types.StateConnecting)

	accessKey, secretKey, err := a.creds(ctx)
	if err != nil {
		// 凭证解析失败 (Vault 没解锁等) 需要用户介入
		a.SetState(types.StateNeedsPermission)
		return types.ConnectResult{NeedsPermission: true, Err: err.Error()}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(a.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)),
	)
	if err != nil {
		a.SetState(types.StateError)
		return types.ConnectResult{Err: fmt.Sprintf("unable to load SDK config: %v", err)}
	}

	a.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if a.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.Endpoint)
		}
		// MinIO 必须 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &a.cfg.Bucket}); err != nil {
		a.SetState(types.StateDisconnected)
		return types.ConnectResult{Offline: true, Err: err.Error()}
	}

	a.SetState(types.StateConnected)
	return types.ConnectResult{Success: true}
}

// key 把资产名映射到 Bucket 内的 Key
func (a *Adapter) key(name string) string {
	if a.cfg.Prefix == "" {
		return name
	}
	return path.Join(a.cfg.Prefix, name)
}

func (a *Adapter) ListAssets(ctx context.Context) ([]source.Asset, error) {
	if a.client == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var assets []source.Asset
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.cfg.Bucket),
		Prefix: aws.String(a.cfg.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: s3 list failed: %v", types.ErrOffline, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, a.cfg.Prefix)
			name = strings.TrimPrefix(name, "/")
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			asset := source.Asset{
				Name: name,
				Path: key,
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				asset.ModifiedAt = *obj.LastModified
			}
			assets = append(assets, asset)
		}
	}

	a.SetAssets(assets)
	return assets, nil
}

func (a *Adapter) FetchAssetData(ctx context.Context, asset source.Asset) ([]byte, error) {
	rc, err := a.FetchAssetStream(ctx, asset)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// FetchAssetStream: S3 原生就是流式的，直接透传 Body
func (a *Adapter) FetchAssetStream(ctx context.Context, asset source.Asset) (io.ReadCloser, error) {
	if a.client == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(asset.Path),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("%w: s3 get failed: %v", types.ErrOffline, err)
	}
	return resp.Body, nil
}

// FetchPreview 检查 sidecar 预览对象 (<key>.thumb.png) 是否存在
// 不存在返回空串：调用方本地生成，不算错误
func (a *Adapter) FetchPreview(ctx context.Context, asset source.Asset) (string, error) {
	if a.client == nil || !a.IsConnected() {
		return "", nil
	}
	previewKey := asset.Path + ".thumb.png"
	if a.hasKey(ctx, previewKey) {
		return previewKey, nil
	}
	return "", nil
}

// FetchMetadata 读取 sidecar JSON (<key>.json)
func (a *Adapter) FetchMetadata(ctx context.Context, asset source.Asset) (map[string]any, error) {
	if a.client == nil || !a.IsConnected() {
		return nil, nil
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(asset.Path + ".json"),
	})
	if err != nil {
		return nil, nil // sidecar 不存在不是错误
	}
	defer resp.Body.Close()

	var meta map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, nil
	}
	return meta, nil
}

// hasKey: Head 比 Get 便宜
func (a *Adapter) hasKey(ctx context.Context, key string) bool {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return false
	}
	// 兼容性：部分 S3 实现返回裸 404 字符串
	return !strings.Contains(err.Error(), "404")
}

// UploadAssets 上传一批资产
// 调用前应该已经过能力门禁，这里再兜一层底
func (a *Adapter) UploadAssets(ctx context.Context, files []source.File) ([]source.Asset, error) {
	if !a.cfg.CanWrite {
		return nil, types.ErrReadOnly
	}
	if a.client == nil || !a.IsConnected() {
		return nil, types.ErrOffline
	}

	var (
		uploaded []source.Asset
		batch    types.PartialBatchError
	)
	for _, f := range files {
		key := a.key(f.Name)
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(f.Data),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: f.Name, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, f.Name)
		uploaded = append(uploaded, source.Asset{
			Name: f.Name,
			Path: key,
			Size: int64(len(f.Data)),
		})
	}

	if len(batch.Failed) > 0 {
		return uploaded, &batch
	}
	return uploaded, nil
}

func (a *Adapter) DeleteAssets(ctx context.Context, paths []string) error {
	if !a.cfg.CanWrite {
		return types.ErrReadOnly
	}
	if a.client == nil || !a.IsConnected() {
		return types.ErrOffline
	}

	var batch types.PartialBatchError
	for _, p := range paths {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(p),
		})
		if err != nil {
			batch.Failed = append(batch.Failed, types.ItemFailure{Name: p, Err: err})
			continue
		}
		batch.Succeeded = append(batch.Succeeded, p)
	}
	if len(batch.Failed) > 0 {
		return &batch
	}
	return nil
}

func (a *Adapter) MarshalConfig() (json.RawMessage, error) {
	return json.Marshal(a.cfg)
}

func (a *Adapter) Disconnect() {
	a.Reset()
	a.client = nil
}
