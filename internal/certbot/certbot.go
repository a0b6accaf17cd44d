// Package certbot requests TLS certificates for endpoint subdomains by
// invoking the certbot binary. Issuance is an external-process call;
// failures surface to the caller and are not retried.
package certbot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/pkg/config"
)

var ErrDisabled = errors.New("certbot is disabled")

// Service runs certbot for endpoint subdomains
type Service struct {
	cfg    config.CertbotConfig
	logger *zap.Logger
	runner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a certbot service
func NewService(cfg config.CertbotConfig, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger.Named("certbot"),
		runner: func(ctx context.Context, name string, args ...string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			if out, err := cmd.CombinedOutput(); err != nil {
				return fmt.Errorf("%s: %w (%s)", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// Issue requests a certificate for the subdomain and its www variant
func (s *Service) Issue(ctx context.Context, subdomain string) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	err := s.runner(ctx, s.cfg.Command, "--nginx", "-d", subdomain, "-d", "www."+subdomain)
	if err != nil {
		s.logger.Error("Certbot run failed", zap.String("subdomain", subdomain), zap.Error(err))
		return fmt.Errorf("failed to issue certificate for %s: %w", subdomain, err)
	}

	s.logger.Info("Certificate issued", zap.String("subdomain", subdomain))
	return nil
}
