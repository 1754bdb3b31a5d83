package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/authgate/internal/events"
	"github.com/spec-kit/authgate/internal/service"
)

// ErrQueueFull is returned by Publish when the worker cannot accept more events.
var ErrQueueFull = errors.New("notification queue full")

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("notification worker stopped")

// NotificationWorker delivers events to the notification handlers on a
// background goroutine so request handlers never wait on delivery. It
// implements events.Dispatcher.
type NotificationWorker struct {
	inner  events.Dispatcher
	logger *zap.Logger
	queue  chan queued

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

type queued struct {
	ctx   context.Context
	event events.Event
}

// StartNotificationWorker registers the notification handlers on inner and
// starts draining the queue. Publish on the returned worker enqueues.
func StartNotificationWorker(notificationService *service.NotificationService, inner events.Dispatcher, logger *zap.Logger, buffer int) *NotificationWorker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}

	w := &NotificationWorker{
		inner:  inner,
		logger: logger,
		queue:  make(chan queued, buffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *NotificationWorker) run() {
	defer close(w.done)
	for q := range w.queue {
		if err := w.inner.Publish(q.ctx, q.event); err != nil {
			w.logger.Warn("notification delivery failed",
				zap.String("event_type", string(q.event.Type)),
				zap.String("event_id", q.event.ID),
				zap.Error(err))
		}
	}
}

// Publish enqueues event. The request context is detached so delivery is not
// cut short when the request finishes.
func (w *NotificationWorker) Publish(ctx context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers handler on the underlying dispatcher.
func (w *NotificationWorker) Subscribe(eventType events.EventType, handler events.EventHandler) {
	w.inner.Subscribe(eventType, handler)
}

// Stop rejects further events and waits for queued ones to be delivered.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

var _ events.Dispatcher = (*NotificationWorker)(nil)
