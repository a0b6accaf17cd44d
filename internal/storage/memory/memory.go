package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/relaypanel/go-relay-backend/internal/domain"
	"github.com/relaypanel/go-relay-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	servers *ServerStore
	rooms   *RoomStore
	events  *EventStore
}

// NewStore creates a new in-memory store
func NewStore() *Store {
	return &Store{
		servers: &ServerStore{data: make(map[string]*domain.Server)},
		rooms:   &RoomStore{data: make(map[int64]*domain.Room)},
		events:  &EventStore{},
	}
}

func (s *Store) Servers() storage.ServerStore   { return s.servers }
func (s *Store) Rooms() storage.RoomStore       { return s.rooms }
func (s *Store) Events() storage.EventStore     { return s.events }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }

// ServerStore implements in-memory server record storage
type ServerStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Server // key: name
	nextID int64
}

func (s *ServerStore) Create(ctx context.Context, server *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[server.Name]; exists {
		return storage.ErrAlreadyExists
	}
	for _, existing := range s.data {
		if existing.Subdomain == server.Subdomain {
			return storage.ErrAlreadyExists
		}
	}

	s.nextID++
	server.ID = s.nextID
	server.CreatedAt = time.Now()
	server.UpdatedAt = time.Now()
	s.data[server.Name] = server
	return nil
}

func (s *ServerStore) GetByName(ctx context.Context, name string) (*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	server, exists := s.data[name]
	if !exists {
		return nil, storage.ErrNotFound
	}
	copied := *server
	return &copied, nil
}

func (s *ServerStore) GetAll(ctx context.Context) ([]*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]*domain.Server, 0, len(s.data))
	for _, server := range s.data {
		copied := *server
		servers = append(servers, &copied)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

func (s *ServerStore) GetByStatus(ctx context.Context, status domain.Status) ([]*domain.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]*domain.Server, 0)
	for _, server := range s.data {
		if server.Status == status {
			copied := *server
			servers = append(servers, &copied)
		}
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

func (s *ServerStore) UpdateStatus(ctx context.Context, name string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	server, exists := s.data[name]
	if !exists {
		return storage.ErrNotFound
	}
	server.Status = status
	server.UpdatedAt = time.Now()
	return nil
}

func (s *ServerStore) MaxPort(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	max := 0
	for _, server := range s.data {
		if server.Port > max {
			max = server.Port
		}
	}
	return max, nil
}

func (s *ServerStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, server := range s.data {
		if server.ID == id {
			delete(s.data, name)
			return nil
		}
	}
	return storage.ErrNotFound
}

// RoomStore implements in-memory room record storage
type RoomStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.Room
	nextID int64
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ServerID == room.ServerID && existing.Name == room.Name {
			return storage.ErrAlreadyExists
		}
	}

	s.nextID++
	room.ID = s.nextID
	room.CreatedAt = time.Now()
	s.data[room.ID] = room
	return nil
}

func (s *RoomStore) GetByServer(ctx context.Context, serverID int64) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*domain.Room, 0)
	for _, room := range s.data {
		if room.ServerID == serverID {
			copied := *room
			rooms = append(rooms, &copied)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (s *RoomStore) GetByServerAndName(ctx context.Context, serverID int64, name string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, room := range s.data {
		if room.ServerID == serverID && room.Name == name {
			copied := *room
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *RoomStore) DeleteByServer(ctx context.Context, serverID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, room := range s.data {
		if room.ServerID == serverID {
			delete(s.data, id)
		}
	}
	return nil
}

// EventStore implements in-memory append-only event storage
type EventStore struct {
	mu     sync.RWMutex
	data   []*domain.Event
	nextID int64
}

func (s *EventStore) Create(ctx context.Context, event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	event.ID = s.nextID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	copied := *event
	s.data = append(s.data, &copied)
	return nil
}

func (s *EventStore) GetByServer(ctx context.Context, serverName string, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.Event, 0)
	for i := len(s.data) - 1; i >= 0; i-- {
		if s.data[i].ServerName != serverName {
			continue
		}
		copied := *s.data[i]
		events = append(events, &copied)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, nil
}
