package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

// EventStore implements MongoDB append-only event storage
type EventStore struct {
	collection *mongo.Collection
	counter    *mongo.Collection
}

func (s *EventStore) Create(ctx context.Context, event *domain.Event) error {
	id, err := nextID(ctx, s.counter, "event_id")
	if err != nil {
		return fmt.Errorf("failed to allocate event ID: %w", err)
	}

	event.ID = id
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if _, err := s.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

func (s *EventStore) GetByServer(ctx context.Context, serverName string, limit int) ([]*domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"server_name": serverName}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var events []*domain.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}
