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

package object

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/tracing"
)

// MinioConfig MinIO / S3 兼容存储连接参数
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore 基于 minio-go 的对象存储，每次调用产生一个 span
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建客户端并确保 bucket 存在
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put 上传对象
func (s *MinioStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (err error) {
	ctx, span := tracing.StartObjectSpan(ctx, "put", s.bucket, key)
	defer func() { tracing.EndSpan(span, err) }()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return apperrors.Transient("object.Put", err)
	}
	return nil
}

// Get 下载完整对象
func (s *MinioStore) Get(ctx context.Context, key string) (data []byte, err error) {
	ctx, span := tracing.StartObjectSpan(ctx, "get", s.bucket, key)
	defer func() { tracing.EndSpan(span, err) }()

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Transient("object.Get", err)
	}
	defer obj.Close()

	data, err = io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperrors.NotFound("object.Get", fmt.Sprintf("object %s", key))
		}
		return nil, apperrors.Transient("object.Get", err)
	}
	return data, nil
}

// Delete 删除对象
func (s *MinioStore) Delete(ctx context.Context, key string) (err error) {
	ctx, span := tracing.StartObjectSpan(ctx, "delete", s.bucket, key)
	defer func() { tracing.EndSpan(span, err) }()

	if err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.Transient("object.Delete", err)
	}
	return nil
}

// Exists 检查对象是否存在
func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, apperrors.Transient("object.Exists", err)
	}
	return true, nil
}

// Close minio 客户端无需关闭
func (s *MinioStore) Close() error {
	return nil
}
