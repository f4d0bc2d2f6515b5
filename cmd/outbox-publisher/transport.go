package main

import (
	"context"

	"github.com/angelmondragon/gogift-backend/pkg/kafka"
	"github.com/angelmondragon/gogift-backend/pkg/pubsub"
)

type pubsubTransport struct {
	client *pubsub.Client
}

func (t pubsubTransport) Name() string { return "pubsub" }

func (t pubsubTransport) Ping(ctx context.Context) error { return t.client.Ping(ctx) }

func (t pubsubTransport) Publish(ctx context.Context, msg message) error {
	return t.client.Publish(ctx, msg.Topic, msg.Data, msg.Attributes)
}

type kafkaTransport struct {
	producer *kafka.Producer
}

func (t kafkaTransport) Name() string { return "kafka" }

func (t kafkaTransport) Ping(ctx context.Context) error { return t.producer.Ping(ctx) }

// Publish keys by aggregate id so one order's events land on one partition.
func (t kafkaTransport) Publish(ctx context.Context, msg message) error {
	return t.producer.Publish(ctx, msg.Topic, msg.Key, msg.Data, msg.Attributes)
}
