// Package bus provides event bus implementations for SmartWallet.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/smartwallet/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// New creates a new event bus based on configuration.
// "channel" returns an in-process ChannelBus, "nats" a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds a message envelope, carrying the trace id of the
// publishing span so handlers can correlate their logs.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata["trace_id"] = sc.TraceID().String()
	}
	return msg
}
