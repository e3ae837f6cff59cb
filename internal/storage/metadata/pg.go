// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "tenant-rag/pkg/errors"
)

// pgStore PostgreSQL 实现 Store，使用 documents 表
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建基于 PostgreSQL 的元数据存储；pool 由 Bootstrap 持有
func NewPgStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// EnsureSchema 创建 documents 表
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
  id UUID PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  source_ref TEXT NOT NULL,
  filename TEXT NOT NULL DEFAULT '',
  mime_type TEXT NOT NULL,
  size_bytes BIGINT NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending',
  chunk_count INT NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS documents_tenant_idx ON documents (tenant_id, created_at DESC)`,
	}
	for _, q := range stmts {
		if _, err := pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("初始化 documents 表失败: %w", err)
		}
	}
	return nil
}

const documentColumns = `id, tenant_id, source_ref, filename, mime_type, size_bytes, status, chunk_count, error_message, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	var id uuid.UUID
	var status string
	if err := row.Scan(&id, &d.TenantID, &d.SourceRef, &d.Filename, &d.MimeType, &d.SizeBytes,
		&status, &d.ChunkCount, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.String()
	d.Status = Status(status)
	return &d, nil
}

// Create 实现 Store
func (s *pgStore) Create(ctx context.Context, doc *Document) error {
	if doc.TenantID == "" {
		return apperrors.Validation("metadata.Create", "tenant_id 不能为空")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Status = StatusPending
	return s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, tenant_id, source_ref, filename, mime_type, size_bytes, status)
VALUES ($1, $2, $3, $4, $5, $6, 'pending') RETURNING created_at, updated_at`,
		doc.ID, doc.TenantID, doc.SourceRef, doc.Filename, doc.MimeType, doc.SizeBytes,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

// Get 实现 Store
func (s *pgStore) Get(ctx context.Context, id string) (*Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFound("metadata.Get", fmt.Sprintf("document %s", id))
	}
	doc, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("metadata.Get", fmt.Sprintf("document %s", id))
		}
		return nil, err
	}
	return doc, nil
}

// ListByTenant 实现 Store
func (s *pgStore) ListByTenant(ctx context.Context, tenantID string, page *Pagination) ([]*Document, error) {
	offset, limit := page.normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = $1 ORDER BY created_at DESC, id ASC OFFSET $2 LIMIT $3`,
		tenantID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountByTenant 实现 Store
func (s *pgStore) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// TransitionStatus 实现 Store；UPDATE ... WHERE status = from 保证同一文档只有一个任务进入 processing
func (s *pgStore) TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkCompleted 实现 Store
func (s *pgStore) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = 'completed', chunk_count = $2, error_message = '', updated_at = now()
WHERE id = $1 AND status = 'processing'`,
		id, chunkCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s is not processing", id)
	}
	return nil
}

// MarkFailed 实现 Store
func (s *pgStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = 'failed', chunk_count = 0, error_message = $2, updated_at = now() WHERE id = $1`,
		id, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("metadata.MarkFailed", fmt.Sprintf("document %s", id))
	}
	return nil
}

// Delete 实现 Store
func (s *pgStore) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Close 连接池由 Bootstrap 统一关闭
func (s *pgStore) Close() error {
	return nil
}
