package object

import (
	"context"
	"io"
	"path"
	"strings"
)

// Store 上传文件的对象存储边界；入库流水线按 key 下载，不在本地缓存
type Store interface {
	// Put 上传对象
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	// Get 下载完整对象
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Close 关闭存储连接
	Close() error
}

// Key 生成 {tenant}/{document}/{filename}，文件名只保留安全字符
func Key(tenantID, documentID, filename string) string {
	return tenantID + "/" + documentID + "/" + sanitize(filename)
}

func sanitize(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	clean = strings.TrimLeft(clean, ".")
	if clean == "" {
		return "upload"
	}
	return clean
}
