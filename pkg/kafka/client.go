// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"med-assist-go/internal/config"
	"med-assist-go/pkg/log"
	"med-assist-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// Publisher 投递回答完成事件。
type Publisher interface {
	Publish(ctx context.Context, event tasks.AnswerCompletedEvent) error
	Close() error
}

// EventHandler 处理消费到的事件。
type EventHandler func(ctx context.Context, event tasks.AnswerCompletedEvent) error

// Producer 是基于 kafka.Writer 的 Publisher。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers(cfg.Brokers)...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// Publish 以会话 ID 作为消息 key，同一会话的事件落在同一分区，保持顺序。
func (p *Producer) Publish(ctx context.Context, event tasks.AnswerCompletedEvent) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

// NewNoopPublisher 在 kafka.enabled=false 时使用。
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, tasks.AnswerCompletedEvent) error { return nil }
func (noopPublisher) Close() error { return nil }

func encodeEvent(event tasks.AnswerCompletedEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(event.SessionID), Value: value}, nil
}

func decodeEvent(m kafka.Message) (tasks.AnswerCompletedEvent, error) {
	var event tasks.AnswerCompletedEvent
	err := json.Unmarshal(m.Value, &event)
	return event, err
}

func brokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// StartConsumer 消费回答完成事件直到 ctx 结束。处理成功或消息无法解析时提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, groupID string, handler EventHandler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}

		event, err := decodeEvent(m)
		if err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if err := handler(ctx, event); err != nil {
			// 不提交 offset，重启后重新消费
			log.Errorf("处理回答事件失败: EntryID=%s, Error: %v", event.EntryID, err)
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
