package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter decouples completion-event emission from the progress write path.
// Emit never blocks and never surfaces an error: events flow through a
// bounded queue to one background goroutine, and a full queue drops the
// event with a warning. A nil *Emitter is a safe no-op.
type Emitter struct {
	pub   *Publisher
	log   *zap.Logger
	queue chan CompletionEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewEmitter(pub *Publisher, queueSize int, log *zap.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 256
	}
	e := &Emitter{
		pub:   pub,
		log:   log,
		queue: make(chan CompletionEvent, queueSize),
		done:  make(chan struct{}),
	}
	go e.drain()
	return e
}

// Emit enqueues a completion fact. Safe to call from any goroutine.
func (e *Emitter) Emit(userID uuid.UUID, kind Kind, entityID uuid.UUID) {
	if e == nil {
		return
	}
	ev := CompletionEvent{
		EventID:    uuid.NewString(),
		UserID:     userID.String(),
		Kind:       kind,
		EntityID:   entityID.String(),
		OccurredAt: time.Now().UTC(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.queue <- ev:
	default:
		e.log.Warn("completion event dropped, queue full",
			zap.String("kind", string(kind)),
			zap.String("entity_id", ev.EntityID),
		)
	}
}

// Close stops accepting events and waits for the queue to drain until ctx
// expires.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) drain() {
	defer close(e.done)
	for ev := range e.queue {
		e.publish(ev)
	}
}

func (e *Emitter) publish(ev CompletionEvent) {
	if !e.pub.Enabled() {
		return
	}
	subject := SubjectLessonCompleted
	if ev.Kind == KindModuleCompleted {
		subject = SubjectModuleCompleted
	}
	data, err := json.Marshal(ev)
	if err != nil {
		e.log.Warn("completion event marshal failed", zap.Error(err))
		return
	}
	if err := e.pub.Publish(subject, data); err != nil {
		e.log.Warn("completion event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
