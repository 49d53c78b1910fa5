package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Worker consumes engagement events from Kafka and records activity
// entries for post owners concurrently.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
	newID        func() string
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
		newID:        uuid.NewString,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}
	if w.newID == nil {
		w.newID = uuid.NewString
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			if !enqueue(ctx, jobs, msg) {
				return
			}
		}
	}
}

// enqueue blocks until the message is queued or ctx is done.
func enqueue(ctx context.Context, jobs chan<- kafka.Message, msg kafka.Message) bool {
	for {
		select {
		case jobs <- msg:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
			logg.Warn("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

// processLoop decodes events and records activity.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handle(ctx, msg); err != nil {
				logg.Error("worker", "Failed to handle engagement event", err)
			}
		}
	}
}

// handle turns one event into an activity entry for the post owner. Only
// likes and comments left by someone other than the owner are recorded.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := appkafka.DecodeEvent(msg)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	if !notifiable(ev) {
		return nil
	}

	a := models.Activity{
		ID:        w.newID(),
		UserID:    ev.OwnerID,
		Kind:      ev.Kind,
		ActorID:   ev.ActorID,
		ActorName: ev.ActorName,
		PostID:    ev.PostID,
		CommentID: ev.CommentID,
		Created:   ev.Created,
	}
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	if err := w.store.AddActivity(ctx, a); err != nil {
		return fmt.Errorf("add activity: %w", err)
	}

	logg.Debug("worker", "Recorded "+string(ev.Kind)+" activity for post owner")
	return nil
}

func notifiable(ev models.Event) bool {
	switch ev.Kind {
	case models.EventPostLiked, models.EventCommentAdded:
	default:
		return false
	}
	return ev.OwnerID != "" && ev.ActorID != ev.OwnerID
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing store")
	w.store.Close()
	return nil
}
