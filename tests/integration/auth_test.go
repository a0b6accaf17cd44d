package integration

import (
	"net/http"
	"testing"
)

func TestAdminAuth_RequiredWhenConfigured(t *testing.T) {
	h := NewTestHarness(t, WithAdminToken("integration-secret"))

	// Harness requests carry the token automatically
	h.GET("/status").Status(http.StatusOK)

	// A bare request is rejected
	req, err := http.NewRequest(http.MethodGet, h.BaseURL+"/servers/list", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	h.Do(req).Status(http.StatusUnauthorized)

	// So is a wrong token
	req, err = http.NewRequest(http.MethodGet, h.BaseURL+"/servers/list", nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer wrong-token")
	h.Do(req).Status(http.StatusUnauthorized)
}

func TestAdminAuth_DisabledByDefault(t *testing.T) {
	h := NewTestHarness(t)

	h.GET("/servers/list").Status(http.StatusOK)
}
