package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances all-tenant subscriptions across replicas.
	NATSQueueGroup string `yaml:"natsQueueGroup"`
}

// AllTenants subscribes to a topic across every tenant.
// Tenant IDs must not contain "." or "*".
const AllTenants = "*"

// Topic names published by the API and consumed by the worker.
const (
	TopicBillSaved      = "contas.bill.saved"
	TopicBillDeleted    = "contas.bill.deleted"
	TopicFigureRecorded = "contas.figure.recorded"
	TopicSummaryUpdated = "contas.summary.updated"
	TopicAlert          = "contas.alert"
)

// ChangeEvent is the payload of bill and figure topics.
type ChangeEvent struct {
	TenantID string         `json:"tenantId"`
	BillID   string         `json:"billId,omitempty"`
	Figure   *MonthlyFigure `json:"figure,omitempty"`
	TraceID  string         `json:"traceId,omitempty"`
}
