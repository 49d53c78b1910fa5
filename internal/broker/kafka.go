package appkafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is what the publisher needs from a producer.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader is what the activity worker needs from a consumer.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

const (
	DefaultBroker  = "localhost:29092"
	DefaultTopic   = "engagement-events"
	DefaultGroupID = "activity-worker"

	defaultTimeout = 10 * time.Second
	maxEventBatch  = 1e6
	commitInterval = time.Second
)

// KafkaConfig describes where engagement events go. Zero fields fall back
// to the local development defaults.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partition    int // producers write to this partition's leader
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	GroupID      string
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 || c.Brokers[0] == "" {
		c.Brokers = []string{DefaultBroker}
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.GroupID == "" {
		c.GroupID = DefaultGroupID
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultTimeout
	}
	return c
}

// readerConfig has the worker fetch as soon as a single event is there;
// activity entries should show up without waiting for a batch to fill.
func (c KafkaConfig) readerConfig() kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       1,
		MaxBytes:       maxEventBatch,
		MaxWait:        c.ReadTimeout,
		CommitInterval: commitInterval,
	}
}

// EventWriter produces to one partition leader over a kafka.Conn. The
// connection serializes concurrent writes, so request handlers share it.
type EventWriter struct {
	conn    *kafka.Conn
	timeout time.Duration
}

func NewKafkaWriter(cfg KafkaConfig) (*EventWriter, error) {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}
	return &EventWriter{conn: conn, timeout: cfg.WriteTimeout}, nil
}

func (w *EventWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		return err
	}
	_, err := w.conn.WriteMessages(messages...)
	return err
}

func (w *EventWriter) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// EventReader consumes the engagement topic as part of a consumer group.
type EventReader struct {
	reader *kafka.Reader
}

func NewKafkaReader(cfg KafkaConfig) *EventReader {
	return &EventReader{reader: kafka.NewReader(cfg.withDefaults().readerConfig())}
}

func (r *EventReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *EventReader) Close() error {
	return r.reader.Close()
}
