package messaging

import (
	"context"
	"time"
)

// Publisher is the write side of a message broker.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// Message is the envelope every relay event is published in.
type Message struct {
	Type      string      `json:"type"`
	UserID    string      `json:"userId"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops everything. Used when no
// relay broker is configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, interface{}) error { return nil }

func (noopPublisher) Close() error { return nil }
