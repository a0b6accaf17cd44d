package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
	"github.com/relaypanel/go-relay-backend/internal/storage"
)

// Recorder appends audit events through a queue so that a slow or failing
// event write never blocks the lifecycle operation that produced it.
// Failures are logged and dropped, never propagated.
type Recorder struct {
	store  storage.Store
	logger *zap.Logger
	events chan *domain.Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a recorder and starts its consumer goroutine
func NewRecorder(store storage.Store, logger *zap.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger.Named("recorder"),
		events: make(chan *domain.Event, 256),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Events().Create(ctx, event); err != nil {
			r.logger.Warn("Failed to write audit event",
				zap.String("server", event.ServerName),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
		}
		cancel()
	}
}

// Record enqueues an audit event. If the queue is full the event is
// dropped with a warning rather than blocking the caller. Events recorded
// after Close are dropped silently.
func (r *Recorder) Record(serverName string, eventType domain.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	event := domain.NewEvent(serverName, eventType, payload)
	select {
	case r.events <- event:
	default:
		r.logger.Warn("Event queue full, dropping audit event",
			zap.String("server", serverName),
			zap.String("event_type", string(eventType)))
	}
}

// Close stops accepting events and waits for the queue to drain. Safe to
// call more than once.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
}
