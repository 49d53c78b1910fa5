package appkafka

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/socialfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// Publisher turns engagement events into Kafka messages keyed by event kind.
type Publisher struct {
	writer KafkaWriter
}

func NewPublisher(w KafkaWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}
	return p.writer.WriteMessages(kafka.Message{
		Key:   []byte(ev.Kind),
		Value: data,
	})
}

// DecodeEvent parses a message produced by Publish.
func DecodeEvent(msg kafka.Message) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return models.Event{}, err
	}
	if ev.Kind == "" {
		ev.Kind = models.EventKind(msg.Key)
	}
	return ev, nil
}
