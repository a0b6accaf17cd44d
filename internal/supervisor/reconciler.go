package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/internal/domain"
)

// ReconcileStartup restores the runtime topology from durable state: every
// server record still marked running is force-started with the startup
// bypass. Failures are isolated per server so one broken endpoint cannot
// keep the rest down. Callers must run this to completion before the
// management API starts accepting requests.
func (s *Supervisor) ReconcileStartup(ctx context.Context) error {
	servers, err := s.store.Servers().GetByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return err
	}

	if len(servers) == 0 {
		s.logger.Info("No running servers to reconcile")
		return nil
	}

	s.logger.Info("Reconciling running servers", zap.Int("count", len(servers)))
	for _, server := range servers {
		if err := s.Start(ctx, server.Name, server.Port, true); err != nil {
			s.logger.Error("Failed to reconcile server",
				zap.String("server", server.Name),
				zap.Int("port", server.Port),
				zap.Error(err))
		}
	}
	return nil
}
