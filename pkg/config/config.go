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
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Plans      PlansConfig      `mapstructure:"plans"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Model      ModelConfig      `mapstructure:"model"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Tenants    []TenantSeed     `mapstructure:"tenants"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port       int              `mapstructure:"port"`
	Host       string           `mapstructure:"host"`
	Timeout    string           `mapstructure:"timeout"`
	MaxBodyMB  int              `mapstructure:"max_body_mb"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	RateLimit      bool    `mapstructure:"rate_limit"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	JWTKey         string  `mapstructure:"jwt_key"`
	JWTTimeout     string  `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh  string  `mapstructure:"jwt_max_refresh"` // 如 "1h"
	AdminUser      string  `mapstructure:"admin_user"`
	AdminPassword  string  `mapstructure:"admin_password"`
}

// WorkerConfig Worker 服务配置
type WorkerConfig struct {
	Concurrency  int    `mapstructure:"concurrency"`   // 同时处理的入库任务数，默认 3
	PollInterval string `mapstructure:"poll_interval"` // 队列为空时的轮询间隔，如 "1s"
	JobTimeout   string `mapstructure:"job_timeout"`   // 单次尝试超时，如 "5m"
	LeaseTimeout string `mapstructure:"lease_timeout"` // 认领后超过该时长未结束的任务重新入队，默认 "10m"
	ID           string `mapstructure:"id"`            // 为空时取 WORKER_ID 或 hostname
}

// IngestConfig 入库管线配置
type IngestConfig struct {
	ChunkTokens      int    `mapstructure:"chunk_tokens"`      // 每个切片的 token 预算，默认 400
	EmbedConcurrency int    `mapstructure:"embed_concurrency"` // 单文档内向量化并发，默认 4
	MaxAttempts      int    `mapstructure:"max_attempts"`      // 含首次，默认 3
	BackoffBase      string `mapstructure:"backoff_base"`      // 指数退避基数，默认 "2s"
	SweepInterval    string `mapstructure:"sweep_interval"`    // 过期切片清理间隔，默认 "1h"
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k"`     // 默认 5
	MinScore float64 `mapstructure:"min_score"` // 默认 0
}

// PlansConfig 套餐限额
type PlansConfig struct {
	Free    PlanLimits `mapstructure:"free"`
	Premium PlanLimits `mapstructure:"premium"`
}

// PlanLimits 单个套餐限额
type PlanLimits struct {
	MessageLimit      int64 `mapstructure:"message_limit"`
	TokenLimit        int   `mapstructure:"token_limit"`
	DocumentLimit     int64 `mapstructure:"document_limit"`
	DocumentSizeLimit int64 `mapstructure:"document_size_limit"` // 字节
	DurationDays      int   `mapstructure:"duration_days"`       // 切片保留天数，0 表示不过期
}

// QuotaConfig 配额计数存储
type QuotaConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Backend           string                    `mapstructure:"backend"` // resty | eino
	RequestsPerMinute float64                   `mapstructure:"requests_per_minute"`
	Providers         map[string]ProviderConfig `mapstructure:"providers"`
}

// EmbeddingConfig Embedding 模型配置
type EmbeddingConfig struct {
	RequestsPerMinute float64                   `mapstructure:"requests_per_minute"`
	Providers         map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	APIKey  string               `mapstructure:"api_key"`
	BaseURL string               `mapstructure:"base_url"`
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name          string  `mapstructure:"name"`
	ContextWindow int     `mapstructure:"context_window"`
	Temperature   float64 `mapstructure:"temperature"`
	Dimension     int     `mapstructure:"dimension"`
	MaxTokens     int     `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型，格式 provider.model_key
type DefaultsConfig struct {
	LLM       string `mapstructure:"llm"`
	Embedding string `mapstructure:"embedding"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Metadata  BackendConfig  `mapstructure:"metadata"`
	Vector    VectorConfig   `mapstructure:"vector"`
	Queue     BackendConfig  `mapstructure:"queue"`
	Object    ObjectConfig   `mapstructure:"object"`
	Cache     CacheConfig    `mapstructure:"cache"`
	Tenant    BackendConfig  `mapstructure:"tenant"`
	Analytics BackendConfig  `mapstructure:"analytics"`
}

// PostgresConfig 共享连接池（metadata/vector/queue/analytics/tenant 共用）
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	PoolSize int    `mapstructure:"pool_size"`
}

// BackendConfig 通用后端选择
type BackendConfig struct {
	Type string `mapstructure:"type"` // memory | postgres
}

// VectorConfig 向量存储配置
type VectorConfig struct {
	Type      string `mapstructure:"type"` // memory | postgres
	Dimension int    `mapstructure:"dimension"`
}

// ObjectConfig 对象存储配置
type ObjectConfig struct {
	Type      string `mapstructure:"type"` // memory | minio
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	TTL      string `mapstructure:"ttl"`
}

// TenantSeed memory 租户存储的初始数据
type TenantSeed struct {
	ID            string `mapstructure:"id"`
	Name          string `mapstructure:"name"`
	Plan          string `mapstructure:"plan"`
	APIKey        string `mapstructure:"api_key"`
	PaymentStatus string `mapstructure:"payment_status"`
	TrialEndsAt   string `mapstructure:"trial_ends_at"` // RFC3339，可空
}

// SecretsConfig secret 解析配置；配置值以 "secret:" 开头时通过 Store 读取
type SecretsConfig struct {
	Provider   string `mapstructure:"provider"` // env | vault | memory
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// setDefaults 所有可调参数的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_body_mb", 110)
	v.SetDefault("api.middleware.rate_limit_rps", 10)
	v.SetDefault("api.middleware.rate_limit_burst", 20)
	v.SetDefault("api.middleware.jwt_timeout", "1h")
	v.SetDefault("api.middleware.jwt_max_refresh", "1h")

	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.poll_interval", "1s")
	v.SetDefault("worker.job_timeout", "5m")
	v.SetDefault("worker.lease_timeout", "10m")

	v.SetDefault("ingest.chunk_tokens", 400)
	v.SetDefault("ingest.embed_concurrency", 4)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.backoff_base", "2s")
	v.SetDefault("ingest.sweep_interval", "1h")

	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.0)

	v.SetDefault("plans.free.message_limit", 200)
	v.SetDefault("plans.free.token_limit", 1000)
	v.SetDefault("plans.free.document_limit", 1)
	v.SetDefault("plans.free.document_size_limit", 3*1024*1024)
	v.SetDefault("plans.free.duration_days", 14)
	v.SetDefault("plans.premium.message_limit", 2000)
	v.SetDefault("plans.premium.token_limit", 2500)
	v.SetDefault("plans.premium.document_limit", 5)
	v.SetDefault("plans.premium.document_size_limit", 100*1024*1024)
	v.SetDefault("plans.premium.duration_days", 0)

	v.SetDefault("quota.type", "memory")
	v.SetDefault("storage.metadata.type", "memory")
	v.SetDefault("storage.vector.type", "memory")
	v.SetDefault("storage.vector.dimension", 768)
	v.SetDefault("storage.queue.type", "memory")
	v.SetDefault("storage.object.type", "memory")
	v.SetDefault("storage.object.bucket", "documents")
	v.SetDefault("storage.cache.type", "memory")
	v.SetDefault("storage.cache.ttl", "60s")
	v.SetDefault("storage.tenant.type", "memory")
	v.SetDefault("storage.analytics.type", "memory")
	v.SetDefault("storage.postgres.pool_size", 10)

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.tracing.service_name", "tenant-rag")
}

// Default 返回仅含默认值的配置（测试与无配置文件启动时使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	return &config, nil
}

// expandEnv 将 "${VAR}" 形式的值替换为环境变量；未设置时为空，相关功能按未配置处理
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
}

// replaceEnvVars 替换配置中的环境变量
func replaceEnvVars(config *Config) {
	for name, pc := range config.Model.LLM.Providers {
		pc.APIKey = expandEnv(pc.APIKey)
		config.Model.LLM.Providers[name] = pc
	}
	for name, pc := range config.Model.Embedding.Providers {
		pc.APIKey = expandEnv(pc.APIKey)
		config.Model.Embedding.Providers[name] = pc
	}
	config.Storage.Postgres.DSN = expandEnv(config.Storage.Postgres.DSN)
	config.Storage.Object.AccessKey = expandEnv(config.Storage.Object.AccessKey)
	config.Storage.Object.SecretKey = expandEnv(config.Storage.Object.SecretKey)
	config.Quota.Password = expandEnv(config.Quota.Password)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
	config.API.Middleware.AdminPassword = expandEnv(config.API.Middleware.AdminPassword)
	config.Secrets.Token = expandEnv(config.Secrets.Token)
}

// Plan 按套餐名返回限额，未知套餐按 free 处理
func (c *Config) Plan(name string) PlanLimits {
	if name == "premium" {
		return c.Plans.Premium
	}
	return c.Plans.Free
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// LoadAPIConfig 加载 API 配置并合并 model 配置
func LoadAPIConfig() (*Config, error) {
	return loadWithModel("configs/api.yaml")
}

// LoadWorkerConfig 加载 Worker 配置并合并 model 配置。
// model 路径解析为与主配置同目录，避免 cwd 导致 model.yaml 未加载。
func LoadWorkerConfig() (*Config, error) {
	return loadWithModel("configs/worker.yaml")
}

func loadWithModel(path string) (*Config, error) {
	if p := os.Getenv("RAG_CONFIG"); p != "" {
		path = p
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	modelPath := "configs/model.yaml"
	if abs, errAbs := filepath.Abs(path); errAbs == nil {
		modelPath = filepath.Join(filepath.Dir(abs), "model.yaml")
	}
	if _, errStat := os.Stat(modelPath); errStat != nil {
		return cfg, nil
	}
	modelCfg, err := LoadConfig(modelPath)
	if err != nil {
		log.Printf("[config] 未加载 model 配置 %q: %v", modelPath, err)
		return cfg, nil
	}
	cfg.Model = modelCfg.Model
	return cfg, nil
}
