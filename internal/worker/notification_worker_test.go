package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/authgate/internal/events"
)

func TestNotificationWorker_DeliversInOrder(t *testing.T) {
	inner := events.NewInMemoryDispatcher()
	w := StartNotificationWorker(nil, inner, zap.NewNop(), 8)

	var (
		mu  sync.Mutex
		got []string
	)
	w.Subscribe(events.EventUserRegistered, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.ID)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, w.Publish(ctx, events.Event{ID: id, Type: events.EventUserRegistered}))
	}
	cancel()
	w.Stop()

	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.ErrorIs(t, w.Publish(context.Background(), events.Event{}), ErrStopped)
	w.Stop()
}

func TestNotificationWorker_LogsHandlerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	inner := events.NewInMemoryDispatcher()
	w := StartNotificationWorker(nil, inner, zap.New(core), 1)
	w.Subscribe(events.EventPasswordChanged, func(context.Context, events.Event) error {
		return errors.New("smtp down")
	})

	require.NoError(t, w.Publish(context.Background(), events.Event{ID: "e1", Type: events.EventPasswordChanged}))
	w.Stop()

	entries := logs.FilterMessage("notification delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "e1", entries[0].ContextMap()["event_id"])
}

func TestNotificationWorker_RejectsWhenFull(t *testing.T) {
	inner := events.NewInMemoryDispatcher()
	release := make(chan struct{})
	started := make(chan struct{})
	inner.Subscribe(events.EventUserRegistered, func(context.Context, events.Event) error {
		close(started)
		<-release
		return nil
	})
	w := StartNotificationWorker(nil, inner, zap.NewNop(), 1)

	require.NoError(t, w.Publish(context.Background(), events.Event{Type: events.EventUserRegistered}))
	<-started
	require.NoError(t, w.Publish(context.Background(), events.Event{Type: events.EventUserDeleted}))
	assert.ErrorIs(t, w.Publish(context.Background(), events.Event{Type: events.EventUserDeleted}), ErrQueueFull)

	close(release)
	w.Stop()
}
