// Package kafka 提供了与 Kafka 消息队列交互的功能：发布文件登记事件并驱动索引器消费。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agent-vault-go/internal/config"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一条消息处理失败后的最大重试次数，超过后提交 offset 放弃。
const maxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.FileIndexTask) error
}

// Producer 发布文件索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Infof("[Kafka] 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// PublishFileIndexTask 发送一个文件索引任务到 Kafka。以文件夹 ID 作为 key，同一文件夹的事件保持有序。
func (p *Producer) PublishFileIndexTask(ctx context.Context, task tasks.FileIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(task.FolderID, 10)),
		Value: taskBytes,
	})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是 Consumer 用到的 kafka.Reader 方法。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费文件索引任务，并用 Redis 统计失败次数。
type Consumer struct {
	reader    messageReader
	topic     string
	rdb       *redis.Client
	processor TaskProcessor
	// backoff 是进程内重试的间隔
	backoff time.Duration
}

// NewConsumer 创建一个消费者。rdb 为 nil 时失败的消息在进程内重试 maxAttempts 次后被跳过。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, topic: cfg.Topic, rdb: rdb, processor: processor, backoff: time.Second}
}

// Run 阻塞地消费消息，直到 ctx 被取消或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", c.topic)
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				log.Info("[Kafka] 消费者已停止")
				return nil
			}
			log.Error("[Kafka] 从 Kafka 读取消息失败", err)
			return err
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.FileIndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("[Kafka] 无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%d:%s", task.FolderID, task.TxHash)
	if err := c.processor.Process(ctx, task); err != nil {
		log.Errorf("[Kafka] 处理文件索引任务失败: folder=%d, content=%s, error: %v", task.FolderID, task.ContentID, err)
		if c.rdb == nil {
			c.retryLocally(ctx, m, task)
			return
		}
		attempts, incErr := c.rdb.Incr(ctx, attemptsKey).Result()
		if incErr != nil {
			log.Warnf("[Kafka] 无法记录失败次数，改为进程内重试: %v", incErr)
			c.retryLocally(ctx, m, task)
			return
		}
		_ = c.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
		if attempts >= maxAttempts {
			log.Errorf("[Kafka] 文件索引任务多次失败(>=%d)，提交 offset 终止重试: folder=%d, content=%s", maxAttempts, task.FolderID, task.ContentID)
			c.commit(ctx, m)
		}
		return
	}

	log.Infof("[Kafka] 文件索引任务处理成功: folder=%d, content=%s", task.FolderID, task.ContentID)
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, attemptsKey).Err()
	}
	c.commit(ctx, m)
}

// retryLocally 在进程内重试，第 maxAttempts 次仍失败时提交 offset 跳过该消息。
// ctx 取消时不提交，消息在重启后重新投递。
func (c *Consumer) retryLocally(ctx context.Context, m kafka.Message, task tasks.FileIndexTask) {
	for attempt := 2; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}
		err := c.processor.Process(ctx, task)
		if err == nil {
			log.Infof("[Kafka] 文件索引任务重试成功: folder=%d, content=%s, attempt=%d", task.FolderID, task.ContentID, attempt)
			c.commit(ctx, m)
			return
		}
		log.Errorf("[Kafka] 文件索引任务重试失败: folder=%d, content=%s, attempt=%d, error: %v", task.FolderID, task.ContentID, attempt, err)
	}
	log.Errorf("[Kafka] 文件索引任务多次失败(>=%d)，提交 offset 跳过: folder=%d, content=%s", maxAttempts, task.FolderID, task.ContentID)
	c.commit(ctx, m)
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("[Kafka] 提交 Kafka 消息 offset 失败: %v", err)
	}
}
