package consumer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"github.com/Eursukkul/booking-microservice/rental-service/internal/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

const (
	RoutingListingCreated = "listing.created"
	RoutingListingUpdated = "listing.updated"
	RoutingListingDeleted = "listing.deleted"
)

// listingMessage is the payload the listing service publishes.
type listingMessage struct {
	ID          uint            `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Title       string          `json:"title"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
	IsActive    *bool           `json:"is_active"`
}

type ListingConsumer struct {
	repo    repository.ListingRepository
	timeout time.Duration
}

func NewListingConsumer(repo repository.ListingRepository) *ListingConsumer {
	return &ListingConsumer{repo: repo, timeout: 10 * time.Second}
}

// Start listens for messages and keeps the local listing replica in sync.
func (lc *ListingConsumer) Start(msgs <-chan amqp.Delivery) {
	go func() {
		for msg := range msgs {
			lc.handleMessage(msg)
		}
		log.Println("[ListingConsumer] channel closed, stopping consumer")
	}()
}

func (lc *ListingConsumer) handleMessage(msg amqp.Delivery) {
	var payload listingMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		log.Printf("[ListingConsumer] failed to unmarshal: %v", err)
		msg.Nack(false, false)
		return
	}
	if payload.ID == 0 {
		log.Printf("[ListingConsumer] dropping %s message without listing id", msg.RoutingKey)
		msg.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lc.timeout)
	defer cancel()

	switch msg.RoutingKey {
	case RoutingListingDeleted:
		if err := lc.repo.Deactivate(ctx, payload.ID); err != nil {
			log.Printf("[ListingConsumer] failed to deactivate listing %d: %v", payload.ID, err)
			msg.Nack(false, true) // requeue
			return
		}
		log.Printf("[ListingConsumer] deactivated listing %d", payload.ID)

	case RoutingListingCreated, RoutingListingUpdated:
		if payload.OwnerID == "" {
			log.Printf("[ListingConsumer] dropping listing %d without owner", payload.ID)
			msg.Nack(false, false)
			return
		}
		active := true
		if payload.IsActive != nil {
			active = *payload.IsActive
		}
		listing := &models.Listing{
			ID:          payload.ID,
			OwnerID:     payload.OwnerID,
			Title:       payload.Title,
			PricePerDay: payload.PricePerDay,
			Active:      active,
		}
		if err := lc.repo.Upsert(ctx, listing); err != nil {
			log.Printf("[ListingConsumer] failed to upsert listing %d: %v", payload.ID, err)
			msg.Nack(false, true) // requeue
			return
		}
		log.Printf("[ListingConsumer] synced listing %d: %s", listing.ID, listing.Title)

	default:
		log.Printf("[ListingConsumer] ignoring routing key %q", msg.RoutingKey)
	}

	msg.Ack(false)
}
