// Package notify delivers booking notifications to users. Delivery is
// fire-and-forget: callers log dispatch errors and carry on.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBookingRequested Kind = "booking_requested"
	KindBookingAccepted  Kind = "booking_accepted"
	KindBookingDeclined  Kind = "booking_declined"
	KindBookingCancelled Kind = "booking_cancelled"
	KindBookingRefunded  Kind = "booking_refunded"
	KindBookingPaid      Kind = "booking_paid"
)

type Dispatcher interface {
	Notify(ctx context.Context, userID string, kind Kind, payload map[string]any) error
}

// Message is the envelope published for every notification.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewMessage(userID string, kind Kind, payload map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// RoutingKey is the topic a notification of kind is published under.
func RoutingKey(kind Kind) string {
	return "notification." + string(kind)
}

// Publisher is the transport the AMQP dispatcher writes to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type AMQPDispatcher struct {
	publisher Publisher
}

func NewAMQPDispatcher(publisher Publisher) *AMQPDispatcher {
	return &AMQPDispatcher{publisher: publisher}
}

func (d *AMQPDispatcher) Notify(ctx context.Context, userID string, kind Kind, payload map[string]any) error {
	msg := NewMessage(userID, kind, payload)
	if err := d.publisher.Publish(ctx, RoutingKey(kind), msg); err != nil {
		return fmt.Errorf("publish %s notification: %w", kind, err)
	}
	return nil
}

// LogDispatcher writes notifications to the process log. It stands in for
// the broker in local development.
type LogDispatcher struct{}

func (LogDispatcher) Notify(_ context.Context, userID string, kind Kind, payload map[string]any) error {
	log.Printf("[Notifier] %s -> user %s: %v", kind, userID, payload)
	return nil
}
