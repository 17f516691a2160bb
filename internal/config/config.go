// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充，供 main 使用。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Operator      OperatorConfig      `mapstructure:"operator"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Search        SearchConfig        `mapstructure:"search"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// JWTConfig 存储 JWT 相关的配置。Secret 为空时 HTTP 接口不做鉴权。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours" validate:"gte=0"`
}

// OperatorConfig 描述服务自身的链上身份，即默认的调用方地址。
type OperatorConfig struct {
	Address string `mapstructure:"address" validate:"required,eth_addr"`
}

// LedgerConfig 选择文件夹登记簿（ledger）的实现。
type LedgerConfig struct {
	Type   string       `mapstructure:"type" validate:"oneof=badger mysql"`
	Badger BadgerConfig `mapstructure:"badger"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
}

// BadgerConfig 存储嵌入式 ledger 的配置。Dir 为空表示纯内存。
type BadgerConfig struct {
	Dir string `mapstructure:"dir"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig 存储后端（数据集 + 存储提供方）的配置。
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
	// Providers 是可绑定到数据集的存储提供方列表，每个提供方对应一个桶。
	Providers []ProviderConfig `mapstructure:"providers" validate:"required,min=1,dive"`
	// DatasetCreationFee 是新建数据集时随首次上传一起支付的费用（最小单位）。
	DatasetCreationFee uint64 `mapstructure:"dataset_creation_fee"`
	// ConfirmationPoll 是轮询数据集创建/分片确认状态的间隔。
	ConfirmationPoll time.Duration `mapstructure:"confirmation_poll" validate:"gt=0"`
	// ConfirmationTimeout 是等待确认的最长时间。
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" validate:"gt=0"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	// ManifestBucket 存放数据集清单（datasets/<address>/<id>.json）。
	ManifestBucket string `mapstructure:"manifest_bucket" validate:"required"`
}

// ProviderConfig 描述一个存储提供方。
type ProviderConfig struct {
	Name   string `mapstructure:"name" validate:"required"`
	Bucket string `mapstructure:"bucket" validate:"required"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时会话缓存退化为进程内缓存。
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时不发布文件事件。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// SearchConfig 选择语义搜索后端。
type SearchConfig struct {
	Type    string        `mapstructure:"type" validate:"oneof=http elasticsearch"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// MetricsConfig 控制 /metrics 是否暴露。
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SeedConfig 描述启动时导入的目录。Dir 为空时跳过导入。
type SeedConfig struct {
	Dir    string `mapstructure:"dir"`
	Folder string `mapstructure:"folder"`
}

// Load 从指定路径读取 YAML 配置，应用默认值与环境变量覆盖，并完成校验。
// configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init 加载配置到 Conf 变量中，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}

func setDefaults(v *viper.Viper) {
	// 没有默认值的键也要登记，AutomaticEnv 才能在 Unmarshal 时覆盖它们
	for _, key := range []string{
		"jwt.secret", "operator.address", "ledger.badger.dir", "ledger.mysql.dsn",
		"storage.minio.access_key_id", "storage.minio.secret_access_key",
		"redis.addr", "redis.password", "kafka.brokers",
		"elasticsearch.addresses", "elasticsearch.username", "elasticsearch.password", "seed.dir",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("ledger.type", "badger")
	v.SetDefault("storage.minio.endpoint", "localhost:9000")
	v.SetDefault("storage.minio.manifest_bucket", "agent-vault-datasets")
	v.SetDefault("storage.confirmation_poll", 500*time.Millisecond)
	v.SetDefault("storage.confirmation_timeout", 2*time.Minute)
	v.SetDefault("redis.session_ttl", 24*time.Hour)
	v.SetDefault("kafka.topic", "agent-vault-files")
	v.SetDefault("kafka.group_id", "agent-vault-indexer")
	v.SetDefault("elasticsearch.index_name", "agent_vault_files")
	v.SetDefault("search.type", "http")
	v.SetDefault("search.base_url", "http://localhost:8000")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("seed.folder", "Seed")
}

// applyDefaults 处理 viper 默认值无法覆盖的情况（例如列表与大小写归一化）。
func applyDefaults(cfg *Config) {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if len(cfg.Storage.Providers) == 0 {
		cfg.Storage.Providers = []ProviderConfig{{Name: "default", Bucket: "agent-vault-pieces"}}
	}
}
