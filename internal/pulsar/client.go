package pulsar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

type PulsarClient struct {
	client   pulsar.Client
	consumer pulsar.Consumer
	producer pulsar.Producer
}

func newClient(url string) (pulsar.Client, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pulsar client: %w", err)
	}
	return client, nil
}

// NewPublisher opens a client that only produces call events.
func NewPublisher(url, topic string) (*PulsarClient, error) {
	client, err := newClient(url)
	if err != nil {
		return nil, err
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &PulsarClient{client: client, producer: producer}, nil
}

// NewSubscriber opens a client that only consumes call events.
func NewSubscriber(url, topic, subscription string) (*PulsarClient, error) {
	client, err := newClient(url)
	if err != nil {
		return nil, err
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:                       topic,
		SubscriptionName:            subscription,
		Type:                        pulsar.Shared,
		SubscriptionInitialPosition: pulsar.SubscriptionPositionEarliest,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &PulsarClient{client: client, consumer: consumer}, nil
}

func (c *PulsarClient) PublishCallEvent(ctx context.Context, event emergency.CallEvent) error {
	if c.producer == nil {
		return fmt.Errorf("pulsar client has no producer")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	_, err = c.producer.Send(ctx, &pulsar.ProducerMessage{
		Key:     event.CallID,
		Payload: payload,
		Properties: map[string]string{
			"status": event.Status,
		},
		EventTime: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to send call event: %w", err)
	}

	return nil
}

func (c *PulsarClient) ReceiveCallEvent(ctx context.Context) (*emergency.CallEvent, error) {
	if c.consumer == nil {
		return nil, fmt.Errorf("pulsar client has no consumer")
	}

	msg, err := c.consumer.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}

	var event emergency.CallEvent
	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		// a payload we cannot read will never become readable
		if ackErr := c.consumer.Ack(msg); ackErr != nil {
			slog.Warn("failed to ack message", slog.String("error", ackErr.Error()))
		}
		return nil, fmt.Errorf("failed to unmarshal call event: %w", err)
	}

	err = c.consumer.Ack(msg)
	if err != nil {
		slog.Warn("failed to ack message", slog.String("error", err.Error()))
	}

	return &event, nil
}

func (c *PulsarClient) Close() {
	if c.producer != nil {
		c.producer.Close()
	}
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
}
