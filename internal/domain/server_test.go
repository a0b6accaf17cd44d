package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple name", "chat", false},
		{"with hyphen", "chat-eu", false},
		{"with underscore", "chat_eu", false},
		{"with digits", "chat2", false},
		{"starts with digit", "2chat", false},
		{"max length", strings.Repeat("a", 63), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 64), true},
		{"uppercase", "Chat", true},
		{"spaces", "chat eu", true},
		{"starts with hyphen", "-chat", true},
		{"path characters", "chat/../etc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		want    Action
		wantErr bool
	}{
		{"start", ActionStart, false},
		{"stop", ActionStop, false},
		{"restart", ActionRestart, false},
		{"Start", "", true},
		{"reboot", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAction(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidAction) {
				t.Errorf("ParseAction(%q) error = %v, want ErrInvalidAction", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAction(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent("chat", EventRoomCreated, map[string]string{"room": "lobby"})

	if ev.ServerName != "chat" {
		t.Errorf("ServerName = %q, want %q", ev.ServerName, "chat")
	}
	if ev.EventType != EventRoomCreated {
		t.Errorf("EventType = %q, want %q", ev.EventType, EventRoomCreated)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		t.Fatalf("Data is not valid JSON: %v", err)
	}
	if payload["room"] != "lobby" {
		t.Errorf("Data payload = %v, want room=lobby", payload)
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	ev := NewEvent("chat", EventServerStopped, nil)

	if ev.Data != "{}" {
		t.Errorf("Data = %q, want %q", ev.Data, "{}")
	}
}

func TestNewEvent_UnmarshalablePayload(t *testing.T) {
	ev := NewEvent("chat", EventMessageSent, func() {})

	if ev.Data != "{}" {
		t.Errorf("Data = %q, want %q", ev.Data, "{}")
	}
}
