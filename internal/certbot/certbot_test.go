package certbot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/relaypanel/go-relay-backend/pkg/config"
)

func TestService_DisabledReturnsErrDisabled(t *testing.T) {
	s := NewService(config.CertbotConfig{Enabled: false}, zap.NewNop())

	err := s.Issue(context.Background(), "chat.example.com")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Issue() error = %v, want ErrDisabled", err)
	}
}

func TestService_IssueRunsCertbot(t *testing.T) {
	s := NewService(config.CertbotConfig{Enabled: true, Command: "certbot"}, zap.NewNop())

	var gotName string
	var gotArgs []string
	s.runner = func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}

	if err := s.Issue(context.Background(), "chat.example.com"); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if gotName != "certbot" {
		t.Errorf("command = %q, want certbot", gotName)
	}
	want := []string{"--nginx", "-d", "chat.example.com", "-d", "www.chat.example.com"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}

func TestService_IssueSurfacesFailure(t *testing.T) {
	s := NewService(config.CertbotConfig{Enabled: true, Command: "certbot"}, zap.NewNop())
	s.runner = func(ctx context.Context, name string, args ...string) error {
		return fmt.Errorf("exit status 1")
	}

	if err := s.Issue(context.Background(), "chat.example.com"); err == nil {
		t.Error("Issue() with failing certbot should error")
	}
}
