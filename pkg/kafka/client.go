// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"

	"cookie-ai-go/internal/config"
	"cookie-ai-go/pkg/log"
	"cookie-ai-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。未启用时保持 nil，发布调用成为空操作。
func InitProducer(cfg config.KafkaConfig) {
	if !cfg.Enabled {
		log.Info("Kafka 事件发布未启用，跳过初始化")
		return
	}
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// PublishChatEvent 发布一条聊天用量事件。发布是尽力而为的：失败只记录日志。
func PublishChatEvent(ctx context.Context, event tasks.ChatEvent) {
	if producer == nil {
		return
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		log.Errorf("序列化聊天事件失败: %v", err)
		return
	}

	if err := producer.WriteMessages(ctx, kafka.Message{Value: eventBytes}); err != nil {
		log.Errorf("发布聊天事件失败: %v", err)
	}
}

// Close 关闭生产者连接。
func Close() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}
