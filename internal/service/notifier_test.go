package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caraxes029/Navigator/internal/domain"
)

type collectingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (c *collectingSink) Notify(_ context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *collectingSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	first := &collectingSink{err: errors.New("sink down")}
	second := &collectingSink{}
	d := NewDispatcher(8, time.Second, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Publish(domain.NewEvent("s1", domain.EventDeviationDetected, "off route"))
	d.Publish(domain.NewEvent("s1", domain.EventRouteComputed, "route ready"))

	require.Eventually(t, func() bool { return second.Len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, first.Len())

	cancel()
	<-done
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(4, time.Second, sink)
	for i := 0; i < 3; i++ {
		d.Publish(domain.NewEvent("s1", domain.EventCriticalCongestion, "jam"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, 3, sink.Len())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, time.Second)
	d.Publish(domain.NewEvent("s1", domain.EventRouteComputed, "a"))
	d.Publish(domain.NewEvent("s1", domain.EventRouteComputed, "b"))
	assert.Equal(t, uint64(1), d.Dropped())
}

func TestEventLogRecent(t *testing.T) {
	l := NewEventLog(3)
	assert.Empty(t, l.Recent(10))

	for _, msg := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Notify(context.Background(), domain.NewEvent("s1", domain.EventRouteComputed, msg)))
	}

	recent := l.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Message)
	assert.Equal(t, "b", recent[2].Message)

	assert.Len(t, l.Recent(2), 2)
}

func TestKafkaNotifier(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var e domain.Event
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.Type != domain.EventDeviationDetected {
			return errors.New("unexpected event type " + string(e.Type))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n := NewKafkaNotifierWithProducer(producer, "navigator-events")
	event := domain.NewEvent("s1", domain.EventDeviationDetected, "off route").At(domain.NewCoordinate(1, 2))

	require.NoError(t, n.Notify(context.Background(), event))

	err := n.Notify(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))

	require.NoError(t, n.Close())
}

type recordingStore struct {
	saved []domain.Event
}

func (r *recordingStore) SaveEvent(_ context.Context, e domain.Event) error {
	r.saved = append(r.saved, e)
	return nil
}

func TestRepositoryNotifier(t *testing.T) {
	store := &recordingStore{}
	n := NewRepositoryNotifier(store)
	require.NoError(t, n.Notify(context.Background(), domain.NewEvent("s1", domain.EventRouteComputed, "ok")))
	assert.Len(t, store.saved, 1)
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), store.saved[0]))
}
