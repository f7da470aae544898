// Package worker consumes asynchronous step-navigation events. Clients on
// flaky connections enqueue step updates over NATS instead of the
// synchronous PUT; this durable consumer applies them through the same
// service path with exactly-once semantics (the processed-events table, in
// the same transaction as the write).
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/learning-platform/services/progress/internal/events"
	"github.com/example/learning-platform/services/progress/internal/progress"
)

const (
	durableName = "progress_steps"
	fetchBatch  = 64
	fetchWait   = 2 * time.Second
)

type Worker struct {
	Log     *zap.Logger
	JS      nats.JetStreamContext
	Service *progress.Service

	MaxDeliver int
}

func New(log *zap.Logger, nc *nats.Conn, svc *progress.Service) (*Worker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Worker{Log: log, JS: js, Service: svc, MaxDeliver: 5}, nil
}

// Run blocks consuming step events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.JS.PullSubscribe(events.SubjectStepUpdated, durableName)
	if err != nil {
		return err
	}
	w.Log.Info("step consumer started", zap.String("subject", events.SubjectStepUpdated))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			return err
		}
		for _, m := range msgs {
			w.handleMsg(ctx, m)
		}
	}
}

func (w *Worker) handleMsg(ctx context.Context, m *nats.Msg) {
	md, _ := m.Metadata()
	numDelivered := uint64(1)
	if md != nil {
		numDelivered = md.NumDelivered
	}

	if w.MaxDeliver > 0 && int(numDelivered) > w.MaxDeliver {
		w.toDLQ(m.Data, fmt.Sprintf("max deliveries exceeded: %d", numDelivered))
		_ = m.Ack()
		return
	}

	var ev events.StepEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		w.toDLQ(m.Data, "invalid payload: "+err.Error())
		_ = m.Ack()
		return
	}

	eventID, err := uuid.Parse(ev.EventID)
	if err != nil {
		w.toDLQ(m.Data, "invalid event_id")
		_ = m.Ack()
		return
	}
	userID, err := uuid.Parse(ev.UserID)
	if err != nil {
		w.toDLQ(m.Data, "invalid user_id")
		_ = m.Ack()
		return
	}
	moduleID, err := uuid.Parse(ev.ModuleID)
	if err != nil {
		w.toDLQ(m.Data, "invalid module_id")
		_ = m.Ack()
		return
	}

	applied, err := w.Service.ApplyStepEvent(ctx, eventID, userID, progress.StepUpdate{
		ModuleID:          moduleID,
		LessonID:          ev.LessonID,
		CurrentStepIndex:  ev.CurrentStepIndex,
		TotalSteps:        ev.TotalSteps,
		TimeSpentDeltaSec: ev.TimeSpentDeltaSec,
	})
	if err != nil {
		if isPermanent(err) {
			w.toDLQ(m.Data, err.Error())
			_ = m.Ack()
			return
		}
		w.Log.Warn("step event apply failed",
			zap.String("event_id", ev.EventID),
			zap.Uint64("attempt", numDelivered),
			zap.Error(err),
		)
		_ = m.NakWithDelay(backoffDelay(numDelivered))
		return
	}
	if !applied {
		w.Log.Debug("step event already applied", zap.String("event_id", ev.EventID))
	}
	_ = m.Ack()
}

// isPermanent reports whether retrying this event can never succeed.
func isPermanent(err error) bool {
	return errors.Is(err, progress.ErrInvalidInput) ||
		errors.Is(err, progress.ErrUnresolved) ||
		errors.Is(err, progress.ErrNotFound)
}

func (w *Worker) toDLQ(data []byte, reason string) {
	msg := map[string]any{"subject": events.SubjectStepUpdated, "reason": reason, "payload": json.RawMessage(data)}
	b, _ := json.Marshal(msg)
	if _, err := w.JS.Publish(events.SubjectStepDLQ, b); err != nil {
		w.Log.Error("dlq publish failed", zap.Error(err))
	}
}
