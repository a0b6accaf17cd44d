// Package proxy provisions nginx reverse-proxy rules for managed
// endpoints and signals nginx to reload after every change.
package proxy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/pkg/config"
)

const siteTemplate = `server {
    listen 80;
    server_name %[1]s www.%[1]s;

    location / {
        proxy_pass http://127.0.0.1:%[2]d;
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
    }
}
`

// CommandRunner executes an external command line. Injectable for tests.
type CommandRunner func(ctx context.Context, command string) error

func defaultRunner(ctx context.Context, command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", parts[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Manager writes per-subdomain site files and reloads nginx. When
// disabled, all operations are logged no-ops so the backend can run
// without a local nginx (development, tests).
type Manager struct {
	cfg    config.ProxyConfig
	logger *zap.Logger
	runner CommandRunner
}

// NewManager creates a proxy manager
func NewManager(cfg config.ProxyConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("proxy"),
		runner: defaultRunner,
	}
}

// NewManagerWithRunner creates a proxy manager with a custom command
// runner. Used by tests to stub the reload signal.
func NewManagerWithRunner(cfg config.ProxyConfig, logger *zap.Logger, runner CommandRunner) *Manager {
	m := NewManager(cfg, logger)
	m.runner = runner
	return m
}

// Provision writes the site file routing the subdomain (and its www
// variant, with HTTP Upgrade passthrough) to the endpoint port, enables
// it, and reloads nginx. Re-provisioning an existing subdomain rewrites
// the rule in place.
func (m *Manager) Provision(ctx context.Context, subdomain string, port int) error {
	if !m.cfg.Enabled {
		m.logger.Debug("Proxy disabled, skipping provision", zap.String("subdomain", subdomain))
		return nil
	}

	configPath := filepath.Join(m.cfg.AvailableDir, subdomain)
	enabledPath := filepath.Join(m.cfg.EnabledDir, subdomain)

	content := fmt.Sprintf(siteTemplate, subdomain, port)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write proxy config: %w", err)
	}

	if _, err := os.Lstat(enabledPath); err == nil {
		if err := os.Remove(enabledPath); err != nil {
			return fmt.Errorf("failed to replace enabled link: %w", err)
		}
	}
	if err := os.Symlink(configPath, enabledPath); err != nil {
		return fmt.Errorf("failed to enable proxy config: %w", err)
	}

	if err := m.reload(ctx); err != nil {
		return err
	}

	m.logger.Info("Proxy rule provisioned",
		zap.String("subdomain", subdomain),
		zap.Int("port", port))
	return nil
}

// Deprovision removes the site file and its enabled link, then reloads
// nginx. Missing files are tolerated so removal is idempotent.
func (m *Manager) Deprovision(ctx context.Context, subdomain string) error {
	if !m.cfg.Enabled {
		m.logger.Debug("Proxy disabled, skipping deprovision", zap.String("subdomain", subdomain))
		return nil
	}

	enabledPath := filepath.Join(m.cfg.EnabledDir, subdomain)
	configPath := filepath.Join(m.cfg.AvailableDir, subdomain)

	if err := os.Remove(enabledPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove enabled link: %w", err)
	}
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove proxy config: %w", err)
	}

	if err := m.reload(ctx); err != nil {
		return err
	}

	m.logger.Info("Proxy rule removed", zap.String("subdomain", subdomain))
	return nil
}

func (m *Manager) reload(ctx context.Context) error {
	if err := m.runner(ctx, m.cfg.ReloadCommand); err != nil {
		return fmt.Errorf("failed to reload nginx: %w", err)
	}
	return nil
}
