// Package events publishes progress facts to NATS JetStream: completion
// events consumed by the achievement subsystem and step events for the
// asynchronous write path.
package events

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectLessonCompleted = "progress.lesson.completed"
	SubjectModuleCompleted = "progress.module.completed"
	SubjectStepUpdated     = "progress.step.updated"
	SubjectStepDLQ         = "progress.step.dlq"

	streamName = "PROGRESS"
)

// ErrPublishDisabled is returned by a stub Publisher so callers that need
// delivery can fall back to their synchronous path.
var ErrPublishDisabled = errors.New("event publishing is disabled")

// Kind names a completion fact.
type Kind string

const (
	KindLessonCompleted Kind = "LessonCompleted"
	KindModuleCompleted Kind = "ModuleCompleted"
)

// CompletionEvent is the envelope consumed by the achievement collaborator.
type CompletionEvent struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Kind       Kind      `json:"kind"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StepEvent is the payload of the asynchronous step-navigation write path.
// LessonID carries the identifier as the client supplied it; resolution
// happens when the event is applied.
type StepEvent struct {
	EventID           string    `json:"event_id"`
	UserID            string    `json:"user_id"`
	ModuleID          string    `json:"module_id"`
	LessonID          string    `json:"lesson_id"`
	CurrentStepIndex  int32     `json:"current_step_index"`
	TotalSteps        int32     `json:"total_steps"`
	TimeSpentDeltaSec int64     `json:"time_spent_delta_sec"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Publisher wraps a JetStream context with stream bootstrap. Created without
// a NATS connection it is a stub whose Publish returns ErrPublishDisabled.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

// NewPublisher ensures the PROGRESS stream exists and returns a publisher.
// Pass nc=nil for a stub (development without NATS, tests).
func NewPublisher(nc *nats.Conn, log *zap.Logger) (*Publisher, error) {
	if nc == nil {
		log.Warn("NATS not configured, progress events will not be published (stub mode)")
		return &Publisher{log: log}, nil
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     streamName,
		Subjects: []string{"progress.>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		log.Warn("failed to create NATS stream (may already exist)", zap.Error(err))
	}
	return &Publisher{js: js, log: log}, nil
}

// Enabled reports whether publishes reach a real stream.
func (p *Publisher) Enabled() bool {
	return p != nil && p.js != nil
}

// Publish sends one payload to subject.
func (p *Publisher) Publish(subject string, data []byte) error {
	if !p.Enabled() {
		return ErrPublishDisabled
	}
	_, err := p.js.Publish(subject, data)
	return err
}
