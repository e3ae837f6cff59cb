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
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestPgStore_Lifecycle(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, EnsureSchema(ctx, pool))

	s := NewPgStore(pool)
	doc := &Document{TenantID: "pg-meta", SourceRef: "pg-meta/x/a.txt", Filename: "a.txt", MimeType: "text/plain", SizeBytes: 3}
	require.NoError(t, s.Create(ctx, doc))
	defer func() { _, _ = s.Delete(ctx, "pg-meta", doc.ID) }()

	ok, err := s.TransitionStatus(ctx, doc.ID, StatusPending, StatusProcessing)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.TransitionStatus(ctx, doc.ID, StatusPending, StatusProcessing)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.MarkCompleted(ctx, doc.ID, 2))
	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 2, got.ChunkCount)
}
