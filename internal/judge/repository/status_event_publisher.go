package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Majnu04/doflow-sub001/internal/common/mq"
	"github.com/Majnu04/doflow-sub001/internal/judge/model"
	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

const eventTypeHeader = "x-event-type"

// StatusEventPublisher publishes final submission statuses for downstream consumers
// such as progress tracking.
type StatusEventPublisher interface {
	PublishFinalStatus(ctx context.Context, sub *model.Submission) error
}

// MQStatusEventPublisher publishes status events to a message queue.
type MQStatusEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewMQStatusEventPublisher creates a new MQ status event publisher.
func NewMQStatusEventPublisher(producer mq.Producer, topic string) *MQStatusEventPublisher {
	return &MQStatusEventPublisher{producer: producer, topic: topic}
}

// PublishFinalStatus publishes a final status event keyed by submission id.
func (p *MQStatusEventPublisher) PublishFinalStatus(ctx context.Context, sub *model.Submission) error {
	if p == nil || p.producer == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("status publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("status topic is required")
	}
	if sub == nil || sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if !sub.Status.IsTerminal() {
		return appErr.New(appErr.InvalidParams).WithMessagef("status %s is not final", sub.Status)
	}
	payload, err := json.Marshal(model.NewStatusEvent(sub))
	if err != nil {
		return fmt.Errorf("marshal status event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = sub.ID
	message.SetHeader(eventTypeHeader, "submission.final")
	if err := p.producer.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.PublishError, "publish status event failed")
	}
	return nil
}
