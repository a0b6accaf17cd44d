// Package supervisor implements the process-wide registry of endpoint
// runtimes. It is the sole mutator of the server-name to runtime mapping
// and keeps that mapping consistent with the durable server records
// across every lifecycle transition.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
	"github.com/relaypanel/go-relay-backend/internal/endpoint"
	"github.com/relaypanel/go-relay-backend/internal/storage"
)

var (
	// ErrAlreadyRunning means the durable record is already marked running
	ErrAlreadyRunning = errors.New("server already running")
	// ErrAlreadyRegistered means a runtime already exists in memory for
	// the name; defends against double-start races
	ErrAlreadyRegistered = errors.New("server already registered")
	// ErrNotRunning means the operation needs a live runtime and none is
	// registered
	ErrNotRunning = errors.New("server not running")
)

// Proxy is the reverse-proxy collaborator consumed around server deletion
type Proxy interface {
	Deprovision(ctx context.Context, subdomain string) error
}

// Supervisor owns the mapping from server name to endpoint runtime. At
// most one runtime exists per name at any time, and a runtime exists iff
// the server's durable status is running. All lifecycle operations for a
// single name are serialized through a keyed mutex.
type Supervisor struct {
	store    storage.Store
	proxy    Proxy
	recorder *Recorder
	opts     endpoint.Options
	logger   *zap.Logger

	mu       sync.RWMutex
	runtimes map[string]*endpoint.Runtime
	locks    map[string]*sync.Mutex
}

// New creates a supervisor with an empty registry
func New(store storage.Store, proxy Proxy, recorder *Recorder, opts endpoint.Options, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		store:    store,
		proxy:    proxy,
		recorder: recorder,
		opts:     opts,
		logger:   logger.Named("supervisor"),
		runtimes: make(map[string]*endpoint.Runtime),
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockName serializes lifecycle operations per server name so that a
// durable read-check-write for one name cannot interleave with itself
func (s *Supervisor) lockName(name string) func() {
	s.mu.Lock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Supervisor) runtime(name string) *endpoint.Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtimes[name]
}

// Create allocates a fresh endpoint runtime bound to the port and
// registers it under the name. Fails with ErrAlreadyRunning if an entry
// already exists for that name.
func (s *Supervisor) Create(name string, port int) error {
	unlock := s.lockName(name)
	defer unlock()
	return s.create(name, port)
}

func (s *Supervisor) create(name string, port int) error {
	if s.runtime(name) != nil {
		return ErrAlreadyRunning
	}

	rt, err := endpoint.New(name, port, s.opts, s.recorder, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runtimes[name] = rt
	s.mu.Unlock()

	s.logger.Info("Endpoint runtime registered",
		zap.String("server", name),
		zap.Int("port", port))
	return nil
}

// Start brings up the runtime for a durable server record. Without the
// startup bypass it requires the record to be stopped; the bypass is used
// only by the reconciler to force-start records left marked running by a
// prior process. Rooms are replayed into the runtime through the same
// path as manual room creation.
func (s *Supervisor) Start(ctx context.Context, name string, port int, isStartup bool) error {
	unlock := s.lockName(name)
	defer unlock()
	return s.start(ctx, name, port, isStartup)
}

func (s *Supervisor) start(ctx context.Context, name string, port int, isStartup bool) error {
	record, err := s.store.Servers().GetByName(ctx, name)
	if err != nil {
		return err
	}

	if record.Status != domain.StatusStopped && !isStartup {
		return ErrAlreadyRunning
	}
	if s.runtime(name) != nil {
		return ErrAlreadyRegistered
	}

	if err := s.create(name, port); err != nil {
		return err
	}

	rooms, err := s.store.Rooms().GetByServer(ctx, record.ID)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if err := s.createRoom(ctx, name, room.Name); err != nil {
			return fmt.Errorf("failed to replay room %s: %w", room.Name, err)
		}
	}

	if err := s.store.Servers().UpdateStatus(ctx, name, domain.StatusRunning); err != nil {
		return err
	}

	s.logger.Info("Server started",
		zap.String("server", name),
		zap.Int("port", port),
		zap.Int("rooms", len(rooms)),
		zap.Bool("startup", isStartup))
	return nil
}

// Stop removes the runtime from the registry immediately and closes its
// listener asynchronously, so a subsequent start is never blocked by
// in-flight socket teardown. The durable record is marked stopped whether
// or not a runtime was found, making Stop idempotent.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	unlock := s.lockName(name)
	defer unlock()
	return s.stop(ctx, name)
}

func (s *Supervisor) stop(ctx context.Context, name string) error {
	s.mu.Lock()
	rt := s.runtimes[name]
	delete(s.runtimes, name)
	s.mu.Unlock()

	if rt != nil {
		go rt.Close()
	}

	if err := s.store.Servers().UpdateStatus(ctx, name, domain.StatusStopped); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	s.recorder.Record(name, domain.EventServerStopped, nil)
	s.logger.Info("Server stopped", zap.String("server", name))
	return nil
}

// Restart forces a fresh runtime on the given port. The server is stopped
// and then brought back through the regular start path, so the stored rooms
// are replayed into the new runtime and the record ends up marked running.
func (s *Supervisor) Restart(ctx context.Context, name string, port int) error {
	unlock := s.lockName(name)
	defer unlock()

	if err := s.stop(ctx, name); err != nil {
		return err
	}
	return s.start(ctx, name, port, false)
}

// CreateRoom declares a room on a running server. The runtime room set is
// a set, so re-adding an existing name is a no-op there; the durable
// insert is ensure-exists, so replay never duplicates room records.
func (s *Supervisor) CreateRoom(ctx context.Context, serverName, roomName string) error {
	unlock := s.lockName(serverName)
	defer unlock()
	return s.createRoom(ctx, serverName, roomName)
}

func (s *Supervisor) createRoom(ctx context.Context, serverName, roomName string) error {
	rt := s.runtime(serverName)
	if rt == nil {
		return ErrNotRunning
	}

	record, err := s.store.Servers().GetByName(ctx, serverName)
	if err != nil {
		return err
	}

	rt.AddRoom(roomName)

	_, err = s.store.Rooms().GetByServerAndName(ctx, record.ID, roomName)
	if errors.Is(err, storage.ErrNotFound) {
		err = s.store.Rooms().Create(ctx, &domain.Room{Name: roomName, ServerID: record.ID})
		if err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return err
		}
	} else if err != nil {
		return err
	}

	rt.Log(fmt.Sprintf("Room created: %s", roomName))
	s.recorder.Record(serverName, domain.EventRoomCreated, map[string]string{"roomName": roomName})
	return nil
}

// SendToRoom broadcasts a message to every client joined to the room on
// the named server
func (s *Supervisor) SendToRoom(serverName, roomName, message string) error {
	rt := s.runtime(serverName)
	if rt == nil {
		return ErrNotRunning
	}
	return rt.SendToRoom(roomName, message)
}

// Logs returns the runtime log buffer of a running server
func (s *Supervisor) Logs(serverName string) ([]string, error) {
	rt := s.runtime(serverName)
	if rt == nil {
		return nil, ErrNotRunning
	}
	return rt.Logs(), nil
}

// List returns every durable server record with live metrics merged in
// from the matching runtime, or zeroed metrics when none is registered
func (s *Supervisor) List(ctx context.Context) ([]*domain.ServerStatus, error) {
	servers, err := s.store.Servers().GetAll(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]*domain.ServerStatus, 0, len(servers))
	for _, server := range servers {
		status := &domain.ServerStatus{
			ID:     server.ID,
			Name:   server.Name,
			Port:   server.Port,
			Status: server.Status,
			Metrics: domain.Metrics{
				Rooms:          []string{},
				ConnectedUsers: []string{},
			},
		}
		if rt := s.runtime(server.Name); rt != nil {
			status.Metrics.Rooms = rt.Rooms()
			status.Metrics.ConnectedUsers = rt.ConnectedUsers()
			status.Metrics.MessageCount = rt.MessageCount()
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Delete tears a server down: stops its runtime if one is live, deletes
// all of its rooms, removes the proxy rule, and only then deletes the
// durable record, so a deprovision failure never leaves a dangling proxy
// rule without a record.
func (s *Supervisor) Delete(ctx context.Context, name string) error {
	unlock := s.lockName(name)
	defer unlock()

	record, err := s.store.Servers().GetByName(ctx, name)
	if err != nil {
		return err
	}

	if s.runtime(name) != nil {
		if err := s.stop(ctx, name); err != nil {
			return err
		}
	}

	if err := s.store.Rooms().DeleteByServer(ctx, record.ID); err != nil {
		return err
	}

	if s.proxy != nil {
		if err := s.proxy.Deprovision(ctx, record.Subdomain); err != nil {
			return fmt.Errorf("failed to deprovision proxy for %s: %w", record.Subdomain, err)
		}
	}

	if err := s.store.Servers().Delete(ctx, record.ID); err != nil {
		return err
	}

	s.logger.Info("Server deleted", zap.String("server", name))
	return nil
}

// Shutdown closes every registered runtime without touching durable
// status, so a reconciling restart can bring the same topology back up
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	runtimes := make([]*endpoint.Runtime, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		runtimes = append(runtimes, rt)
	}
	s.runtimes = make(map[string]*endpoint.Runtime)
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt.Close()
	}
}
