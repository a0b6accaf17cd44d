package proxy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/pkg/config"
)

func newTestManager(t *testing.T) (*Manager, *int, string, string) {
	t.Helper()
	available := t.TempDir()
	enabled := t.TempDir()

	reloads := 0
	m := NewManagerWithRunner(config.ProxyConfig{
		Enabled:       true,
		AvailableDir:  available,
		EnabledDir:    enabled,
		ReloadCommand: "nginx -s reload",
	}, zap.NewNop(), func(ctx context.Context, command string) error {
		reloads++
		return nil
	})
	return m, &reloads, available, enabled
}

func TestManager_Provision(t *testing.T) {
	m, reloads, available, enabled := newTestManager(t)

	if err := m.Provision(context.Background(), "chat.example.com", 5005); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(available, "chat.example.com"))
	if err != nil {
		t.Fatalf("site file not written: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"server_name chat.example.com www.chat.example.com;",
		"proxy_pass http://127.0.0.1:5005;",
		"proxy_set_header Upgrade $http_upgrade;",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("site file missing %q", want)
		}
	}

	link, err := os.Readlink(filepath.Join(enabled, "chat.example.com"))
	if err != nil {
		t.Fatalf("enabled link not created: %v", err)
	}
	if link != filepath.Join(available, "chat.example.com") {
		t.Errorf("enabled link points to %s", link)
	}

	if *reloads != 1 {
		t.Errorf("reload count = %d, want 1", *reloads)
	}
}

func TestManager_ProvisionIsIdempotent(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := m.Provision(ctx, "chat.example.com", 5005); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	// Re-provisioning rewrites the rule in place
	if err := m.Provision(ctx, "chat.example.com", 5006); err != nil {
		t.Fatalf("Provision() again error = %v", err)
	}
}

func TestManager_Deprovision(t *testing.T) {
	m, reloads, available, enabled := newTestManager(t)
	ctx := context.Background()

	if err := m.Provision(ctx, "chat.example.com", 5005); err != nil {
		t.Fatalf("Provision() error = %v", err)
	}
	if err := m.Deprovision(ctx, "chat.example.com"); err != nil {
		t.Fatalf("Deprovision() error = %v", err)
	}

	if _, err := os.Lstat(filepath.Join(enabled, "chat.example.com")); !os.IsNotExist(err) {
		t.Error("enabled link still present after deprovision")
	}
	if _, err := os.Stat(filepath.Join(available, "chat.example.com")); !os.IsNotExist(err) {
		t.Error("site file still present after deprovision")
	}
	if *reloads != 2 {
		t.Errorf("reload count = %d, want 2", *reloads)
	}

	// Removing an absent rule is a no-op
	if err := m.Deprovision(ctx, "chat.example.com"); err != nil {
		t.Fatalf("Deprovision() of absent rule error = %v", err)
	}
}

func TestManager_ReloadFailureSurfaces(t *testing.T) {
	m := NewManagerWithRunner(config.ProxyConfig{
		Enabled:       true,
		AvailableDir:  t.TempDir(),
		EnabledDir:    t.TempDir(),
		ReloadCommand: "nginx -s reload",
	}, zap.NewNop(), func(ctx context.Context, command string) error {
		return fmt.Errorf("exit status 1")
	})

	if err := m.Provision(context.Background(), "chat.example.com", 5005); err == nil {
		t.Error("Provision() with failing reload should error")
	}
}

func TestManager_DisabledIsNoOp(t *testing.T) {
	m := NewManager(config.ProxyConfig{Enabled: false}, zap.NewNop())

	if err := m.Provision(context.Background(), "chat.example.com", 5005); err != nil {
		t.Errorf("Provision() while disabled error = %v", err)
	}
	if err := m.Deprovision(context.Background(), "chat.example.com"); err != nil {
		t.Errorf("Deprovision() while disabled error = %v", err)
	}
}
