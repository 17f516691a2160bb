// Package app 按配置显式构造进程级依赖（ledger、存储后端、会话缓存、各服务与工具分发器），
// 替代散落在各包里的全局单例。
package app

import (
	"context"
	"errors"
	"fmt"

	"agent-vault-go/internal/config"
	"agent-vault-go/internal/pipeline"
	"agent-vault-go/internal/repository"
	"agent-vault-go/internal/service"
	"agent-vault-go/internal/tool"
	"agent-vault-go/pkg/database"
	"agent-vault-go/pkg/es"
	"agent-vault-go/pkg/kafka"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/metrics"
	"agent-vault-go/pkg/search"
	"agent-vault-go/pkg/storage"
	"agent-vault-go/pkg/token"

	"github.com/go-redis/redis/v8"
)

// Context 持有一个进程内共享的全部依赖。测试可以用 Reset 清空会话缓存。
type Context struct {
	Config *config.Config

	Ledger     repository.LedgerRepository
	Backend    storage.Backend
	Sessions   service.SessionService
	Uploads    service.UploadService
	Ownership  service.OwnershipService
	Folders    service.FolderService
	Search     service.SearchService
	Dispatcher *tool.Dispatcher
	JWT        *token.JWTManager

	redis    *redis.Client
	producer *kafka.Producer
	consumer *kafka.Consumer
	closers  []func() error
}

// Deps 是可以从外部注入的依赖。零值字段按配置构造。
type Deps struct {
	Ledger    repository.LedgerRepository
	Backend   storage.Backend
	Cache     repository.SessionCache
	Publisher service.FileEventPublisher
	Search    search.Backend
}

// New 按配置构造进程上下文。
func New(ctx context.Context, cfg *config.Config) (*Context, error) {
	return NewWithDeps(ctx, cfg, Deps{})
}

// NewWithDeps 与 New 相同，但优先使用 deps 中给出的依赖。
func NewWithDeps(ctx context.Context, cfg *config.Config, deps Deps) (*Context, error) {
	c := &Context{Config: cfg}
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	if err := c.build(ctx, deps); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Context) build(ctx context.Context, deps Deps) error {
	cfg := c.Config

	if cfg.Redis.Addr != "" {
		rdb, err := database.InitRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		c.redis = rdb
		c.closers = append(c.closers, rdb.Close)
	}

	ledger := deps.Ledger
	if ledger == nil {
		var err error
		if ledger, err = c.openLedger(); err != nil {
			return err
		}
		c.closers = append(c.closers, ledger.Close)
	}
	c.Ledger = ledger

	backend := deps.Backend
	if backend == nil {
		mb, err := storage.NewMinioBackend(cfg.Storage)
		if err != nil {
			// 后端不可用时服务仍可启动，上传返回 ErrNotInitialized
			log.Errorf("[App] 初始化存储后端失败, 上传将不可用: %v", err)
		} else {
			backend = mb
		}
	}
	c.Backend = backend

	cache := deps.Cache
	if cache == nil {
		if c.redis != nil {
			cache = repository.NewRedisSessionCache(c.redis, cfg.Redis.SessionTTL)
		} else {
			cache = repository.NewMemorySessionCache()
		}
	}

	publisher := deps.Publisher
	var esClient *es.Client
	if cfg.Elasticsearch.Addresses != "" {
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
		}
		if err := client.EnsureIndex(ctx); err != nil {
			log.Warnf("[App] 确认文件索引失败, 索引与搜索可能不可用: %v", err)
		}
		esClient = client
	}
	if cfg.Kafka.Brokers != "" {
		if publisher == nil {
			c.producer = kafka.NewProducer(cfg.Kafka)
			c.closers = append(c.closers, c.producer.Close)
			publisher = c.producer
		}
		if esClient != nil {
			c.consumer = kafka.NewConsumer(cfg.Kafka, c.redis, pipeline.NewProcessor(esClient))
		}
	}

	searchBackend := deps.Search
	if searchBackend == nil {
		switch cfg.Search.Type {
		case "elasticsearch":
			if esClient != nil {
				searchBackend = search.NewESBackend(esClient, 10)
			}
		default:
			if cfg.Search.BaseURL != "" {
				searchBackend = search.NewHTTPBackend(cfg.Search.BaseURL, cfg.Search.Timeout)
			}
		}
	}

	vm := metrics.NewVaultMetrics()
	operator := cfg.Operator.Address
	c.Sessions = service.NewSessionService(backend, cache)
	c.Uploads = service.NewUploadService(backend, c.Sessions, vm)
	c.Ownership = service.NewOwnershipService(ledger, operator)
	c.Folders = service.NewFolderService(ledger, c.Ownership, publisher, operator)
	c.Search = service.NewSearchService(searchBackend)
	c.Dispatcher = tool.NewDispatcher(c.Folders, c.Uploads, c.Search, operator, vm)
	if cfg.JWT.Secret != "" {
		c.JWT = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	}
	log.Infow("[App] 进程上下文已就绪",
		"ledger", cfg.Ledger.Type, "redis", c.redis != nil, "kafka", c.producer != nil || publisher != nil,
		"indexer", c.consumer != nil, "search", searchBackend != nil, "auth", c.JWT != nil)
	return nil
}

func (c *Context) openLedger() (repository.LedgerRepository, error) {
	switch c.Config.Ledger.Type {
	case "mysql":
		db, err := database.InitMySQL(c.Config.Ledger.MySQL.DSN)
		if err != nil {
			return nil, err
		}
		return repository.NewGormLedger(db)
	default:
		return repository.NewBadgerLedger(c.Config.Ledger.Badger.Dir)
	}
}

// RunIndexer 阻塞地运行文件索引消费者，直到 ctx 被取消。未配置 Kafka 或 Elasticsearch 时立即返回。
func (c *Context) RunIndexer(ctx context.Context) error {
	if c.consumer == nil {
		log.Info("[App] 未配置索引消费者，跳过")
		return nil
	}
	return c.consumer.Run(ctx)
}

// Reset 清空存储会话缓存。
func (c *Context) Reset(ctx context.Context) error {
	return c.Sessions.Reset(ctx)
}

// Close 按构造的逆序释放资源。
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
