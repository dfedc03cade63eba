package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/caraxes029/Navigator/internal/domain"
)

// DefaultEventBuffer is the dispatcher queue size
const DefaultEventBuffer = 256

// EventPublisher accepts events without blocking the caller
type EventPublisher interface {
	Publish(event domain.Event)
}

// Dispatcher fans queued session events out to every sink. Publish never
// blocks; when the queue is full the event is dropped and logged.
type Dispatcher struct {
	queue   chan domain.Event
	sinks   []domain.Notifier
	timeout time.Duration

	mu      sync.Mutex
	dropped uint64
}

// NewDispatcher creates a dispatcher with the given queue size and sinks
func NewDispatcher(buffer int, timeout time.Duration, sinks ...domain.Notifier) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		queue:   make(chan domain.Event, buffer),
		sinks:   sinks,
		timeout: timeout,
	}
}

// Publish queues an event for delivery
func (d *Dispatcher) Publish(event domain.Event) {
	select {
	case d.queue <- event:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		log.WithField("type", event.Type).Warn("Event queue full, dropping event")
	}
}

// Dropped returns how many events were discarded because the queue was full
func (d *Dispatcher) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers events until ctx is cancelled, then drains what is left
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event domain.Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := sink.Notify(ctx, event); err != nil {
			log.WithError(err).WithField("type", event.Type).Warn("Event delivery failed")
		}
		cancel()
	}
}

// LogNotifier writes events to the application log
type LogNotifier struct{}

// Notify logs the event
func (LogNotifier) Notify(_ context.Context, event domain.Event) error {
	entry := log.WithFields(log.Fields{
		"session": event.SessionID,
		"type":    event.Type,
	})
	if event.Position != nil {
		entry = entry.WithField("position", event.Position.String())
	}
	switch event.Type {
	case domain.EventCollaboratorUnavailable:
		entry.Info(event.Message)
	default:
		entry.Warn(event.Message)
	}
	return nil
}

// EventRecorder persists events
type EventRecorder interface {
	SaveEvent(ctx context.Context, event domain.Event) error
}

// RepositoryNotifier stores events in the session repository
type RepositoryNotifier struct {
	store EventRecorder
}

// NewRepositoryNotifier creates a repository-backed sink
func NewRepositoryNotifier(store EventRecorder) *RepositoryNotifier {
	return &RepositoryNotifier{store: store}
}

// Notify saves the event
func (n *RepositoryNotifier) Notify(ctx context.Context, event domain.Event) error {
	if err := n.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("repository notifier: failed to save event: %w", err)
	}
	return nil
}

// EventLog keeps the most recent events in memory for the API
type EventLog struct {
	mu     sync.RWMutex
	events []domain.Event
	next   int
	full   bool
}

// NewEventLog creates a ring holding up to capacity events
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventLog{events: make([]domain.Event, capacity)}
}

// Notify appends the event, evicting the oldest when full
func (l *EventLog) Notify(_ context.Context, event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first
func (l *EventLog) Recent(limit int) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.next
	if l.full {
		size = len(l.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]domain.Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (l.next - i + len(l.events)) % len(l.events)
		out = append(out, l.events[idx])
	}
	return out
}

// KafkaNotifier publishes events as JSON to a Kafka topic, keyed by session
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaNotifier connects a synchronous producer to brokers
func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 10 * time.Second
	cfg.Net.WriteTimeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka notifier: failed to create producer: %w", err)
	}

	log.Printf("Kafka event sink connected to %s (topic %s)", strings.Join(brokers, ","), topic)
	return NewKafkaNotifierWithProducer(producer, topic), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

// Notify sends the event
func (k *KafkaNotifier) Notify(_ context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka notifier: failed to encode event: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka notifier: failed to send to %s: %w", k.topic, err)
	}
	return nil
}

// Close shuts the producer down
func (k *KafkaNotifier) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
