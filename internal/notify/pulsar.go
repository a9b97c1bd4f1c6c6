package notify

import (
	"context"

	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

type CallEventPublisher interface {
	PublishCallEvent(ctx context.Context, event emergency.CallEvent) error
}

type PulsarSink struct {
	publisher CallEventPublisher
}

func NewPulsarSink(publisher CallEventPublisher) *PulsarSink {
	return &PulsarSink{publisher: publisher}
}

func (s *PulsarSink) Name() string { return "pulsar" }

func (s *PulsarSink) Send(ctx context.Context, event emergency.CallEvent) error {
	return s.publisher.PublishCallEvent(ctx, event)
}
