package metadata

import (
	"context"
	"time"
)

// Status 文档处理状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Store 文档元数据存储接口
type Store interface {
	// Create 创建文档元数据，状态固定为 pending
	Create(ctx context.Context, doc *Document) error
	// Get 根据 ID 获取文档元数据
	Get(ctx context.Context, id string) (*Document, error)
	// ListByTenant 按创建时间倒序列出租户文档
	ListByTenant(ctx context.Context, tenantID string, page *Pagination) ([]*Document, error)
	// CountByTenant 统计租户文档数量
	CountByTenant(ctx context.Context, tenantID string) (int64, error)
	// TransitionStatus 当前状态为 from 时原子切换到 to，返回是否切换成功
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// MarkCompleted 仅在 processing 时写入切片数并置为 completed
	MarkCompleted(ctx context.Context, id string, chunkCount int) error
	// MarkFailed 置为 failed 并记录错误
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// Delete 删除租户下的文档，不存在时返回 false
	Delete(ctx context.Context, tenantID, id string) (bool, error)
	// Close 关闭存储连接
	Close() error
}

// Document 文档元数据
type Document struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	SourceRef    string    `json:"source_ref"` // 对象存储 key
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       Status    `json:"status"`
	ChunkCount   int       `json:"chunk_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Pagination 分页参数
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func (p *Pagination) normalize() (offset, limit int) {
	offset, limit = 0, 100
	if p == nil {
		return
	}
	if p.Offset > 0 {
		offset = p.Offset
	}
	if p.Limit > 0 && p.Limit <= 1000 {
		limit = p.Limit
	}
	return
}
