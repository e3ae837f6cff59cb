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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
log:
  level: "debug"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host: got %q", cfg.API.Host)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: text\n"), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Worker.Concurrency != 3 {
		t.Errorf("Worker.Concurrency: got %d, want 3", cfg.Worker.Concurrency)
	}
	if cfg.Ingest.ChunkTokens != 400 || cfg.Ingest.MaxAttempts != 3 || cfg.Ingest.BackoffBase != "2s" {
		t.Errorf("Ingest defaults: %+v", cfg.Ingest)
	}
	free := cfg.Plan("free")
	if free.MessageLimit != 200 || free.TokenLimit != 1000 || free.DocumentLimit != 1 || free.DocumentSizeLimit != 3*1024*1024 || free.DurationDays != 14 {
		t.Errorf("free plan defaults: %+v", free)
	}
	premium := cfg.Plan("premium")
	if premium.MessageLimit != 2000 || premium.TokenLimit != 2500 || premium.DocumentLimit != 5 || premium.DurationDays != 0 {
		t.Errorf("premium plan defaults: %+v", premium)
	}
	if cfg.Plan("unknown").MessageLimit != free.MessageLimit {
		t.Error("unknown plan should fall back to free")
	}
}

func TestLoadConfig_EnvAPIKeyAndTenants(t *testing.T) {
	t.Setenv("TEST_RAG_LLM_KEY", "sk-test")
	dir := t.TempDir()
	yaml := `
model:
  llm:
    providers:
      openai:
        api_key: "${TEST_RAG_LLM_KEY}"
storage:
  postgres:
    dsn: "${TEST_RAG_UNSET_DSN}"
tenants:
  - id: "t1"
    plan: "premium"
    api_key: "k1"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := cfg.Model.LLM.Providers["openai"].APIKey; got != "sk-test" {
		t.Errorf("api key: got %q", got)
	}
	if cfg.Storage.Postgres.DSN != "" {
		t.Errorf("unset env reference should expand to empty, got %q", cfg.Storage.Postgres.DSN)
	}
	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Plan != "premium" {
		t.Errorf("tenants: %+v", cfg.Tenants)
	}
}

func TestParseDuration(t *testing.T) {
	if ParseDuration("", time.Second) != time.Second {
		t.Error("empty should return default")
	}
	if ParseDuration("bad", time.Second) != time.Second {
		t.Error("invalid should return default")
	}
	if ParseDuration("2s", time.Second) != 2*time.Second {
		t.Error("2s should parse")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Retrieval.TopK != 5 || cfg.Storage.Vector.Type != "memory" {
		t.Errorf("Default: %+v %+v", cfg.Retrieval, cfg.Storage.Vector)
	}
}
