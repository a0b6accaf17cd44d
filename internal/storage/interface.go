package storage

import (
	"context"
	"errors"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// ServerStore defines the interface for server record storage
type ServerStore interface {
	// Create creates a new server record
	Create(ctx context.Context, server *domain.Server) error

	// GetByName retrieves a server by its unique name
	GetByName(ctx context.Context, name string) (*domain.Server, error)

	// GetAll retrieves all server records
	GetAll(ctx context.Context) ([]*domain.Server, error)

	// GetByStatus retrieves all servers with the given status
	GetByStatus(ctx context.Context, status domain.Status) ([]*domain.Server, error)

	// UpdateStatus sets the durable status of a server by name
	UpdateStatus(ctx context.Context, name string, status domain.Status) error

	// MaxPort returns the highest assigned port, or 0 when no servers exist
	MaxPort(ctx context.Context) (int, error)

	// Delete deletes a server record by ID
	Delete(ctx context.Context, id int64) error
}

// RoomStore defines the interface for room record storage
type RoomStore interface {
	// Create creates a new room record
	Create(ctx context.Context, room *domain.Room) error

	// GetByServer retrieves all rooms owned by a server
	GetByServer(ctx context.Context, serverID int64) ([]*domain.Room, error)

	// GetByServerAndName retrieves a single room by owning server and name
	GetByServerAndName(ctx context.Context, serverID int64, name string) (*domain.Room, error)

	// DeleteByServer deletes all rooms owned by a server
	DeleteByServer(ctx context.Context, serverID int64) error
}

// EventStore defines the interface for append-only audit event storage
type EventStore interface {
	// Create appends an event. Events are never updated or deleted.
	Create(ctx context.Context, event *domain.Event) error

	// GetByServer retrieves the most recent events for a server name,
	// newest first, capped at limit (0 means no cap)
	GetByServer(ctx context.Context, serverName string, limit int) ([]*domain.Event, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Servers() ServerStore
	Rooms() RoomStore
	Events() EventStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
