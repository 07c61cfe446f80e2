package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// Publisher публикует события транзакций в Kafka. Nil-значение безопасно:
// все методы становятся no-op, поэтому брокер можно не разворачивать в
// локальной среде.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher создаёт продюсера. Пустой список брокеров отключает публикацию.
func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		},
	}
}

// Publish отправляет событие, ключ — id транзакции, чтобы события одной
// транзакции попадали в одну партицию и сохраняли порядок.
func (p *Publisher) Publish(ctx context.Context, event TransactionEvent) error {
	if p == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broker: сериализация события: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TransactionID.String()),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("broker: запись в kafka: %w", err)
	}

	if logger.Log != nil {
		logger.Log.WithField("event_type", event.EventType).
			WithField("transaction_id", event.TransactionID).
			Debug("broker: событие опубликовано")
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
