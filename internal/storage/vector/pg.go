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

package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore 基于 PostgreSQL + pgvector 的向量索引，使用 chunks 表
type PgStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPgStore 创建 pgvector 索引；pool 由调用方持有并负责关闭
func NewPgStore(pool *pgxpool.Pool, dimension int) *PgStore {
	return &PgStore{pool: pool, dimension: dimension}
}

// EnsureSchema 创建 vector 扩展、chunks 表与索引
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("pgvector 需要正数维度，当前 %d", s.dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
  id UUID PRIMARY KEY,
  seq BIGSERIAL NOT NULL,
  tenant_id TEXT NOT NULL,
  document_id TEXT NOT NULL,
  chunk_index INT NOT NULL,
  content TEXT NOT NULL,
  embedding vector(%d) NOT NULL,
  expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS chunks_tenant_idx ON chunks (tenant_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id)`,
		`CREATE INDEX IF NOT EXISTS chunks_expires_idx ON chunks (expires_at) WHERE expires_at IS NOT NULL`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("初始化 chunks 表失败: %w", err)
		}
	}
	return nil
}

// formatVector 转为 pgvector 文本字面量，如 [0.1,0.2]
func formatVector(v []float64) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

const insertChunkSQL = `INSERT INTO chunks (id, tenant_id, document_id, chunk_index, content, embedding, expires_at)
VALUES ($1, $2, $3, $4, $5, $6::vector, $7)`

func (s *PgStore) check(c *Chunk) error {
	if c.TenantID == "" || c.DocumentID == "" {
		return fmt.Errorf("chunk tenant_id 与 document_id 不能为空")
	}
	if s.dimension > 0 && len(c.Vector) != s.dimension {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(c.Vector), s.dimension)
	}
	return nil
}

// Insert 写入单个切片
func (s *PgStore) Insert(ctx context.Context, c *Chunk) (string, error) {
	if err := s.check(c); err != nil {
		return "", err
	}
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, insertChunkSQL,
		id, c.TenantID, c.DocumentID, c.ChunkIndex, c.Text, formatVector(c.Vector), c.ExpiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertBatch 在一个事务内写入，任一失败则整体回滚
func (s *PgStore) InsertBatch(ctx context.Context, chunks []*Chunk) error {
	for _, c := range chunks {
		if err := s.check(c); err != nil {
			return err
		}
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		batch.Queue(insertChunkSQL,
			c.ID, c.TenantID, c.DocumentID, c.ChunkIndex, c.Text, formatVector(c.Vector), c.ExpiresAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Search 使用 <=> 余弦距离，得分 = 1 - 距离，按 seq 保证同分稳定。
// 零向量的距离为 NaN，得分记 0，与内存实现一致。
func (s *PgStore) Search(ctx context.Context, tenantID string, query []float64, k int, minScore float64) ([]*SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, document_id, chunk_index, content, score FROM (
  SELECT id, document_id, chunk_index, content, seq,
         CASE WHEN dist IS NULL OR dist = 'NaN'::float8 THEN 0
              ELSE GREATEST(0, LEAST(1, 1 - dist)) END AS score
  FROM (
    SELECT id, document_id, chunk_index, content, seq, (embedding <=> $2::vector) AS dist
    FROM chunks
    WHERE tenant_id = $1 AND (expires_at IS NULL OR expires_at > now())
  ) scored
) ranked
WHERE score >= $3
ORDER BY score DESC, seq ASC
LIMIT $4`, tenantID, formatVector(query), minScore, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SearchResult
	for rows.Next() {
		var r SearchResult
		var id uuid.UUID
		if err := rows.Scan(&id, &r.DocumentID, &r.ChunkIndex, &r.Text, &r.Score); err != nil {
			return nil, err
		}
		r.ChunkID = id.String()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PgStore) exec(ctx context.Context, q string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByDocument 删除文档的全部切片
func (s *PgStore) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	return s.exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
}

// DeleteByTenant 删除租户的全部切片
func (s *PgStore) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	return s.exec(ctx, `DELETE FROM chunks WHERE tenant_id = $1`, tenantID)
}

// PurgeExpired 删除已过期切片
func (s *PgStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, `DELETE FROM chunks WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
}

// CountByDocument 统计文档的切片数
func (s *PgStore) CountByDocument(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// Close 连接池由 Bootstrap 统一关闭
func (s *PgStore) Close() error {
	return nil
}
