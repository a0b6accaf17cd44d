package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Status is the durable lifecycle state of a managed socket server.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// serverNameRegex validates that server names are URL-safe slugs.
var serverNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateServerName checks if a server name is a valid URL-safe slug
func ValidateServerName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("server name cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("server name cannot exceed 63 characters")
	}
	if !serverNameRegex.MatchString(name) {
		return fmt.Errorf("server name must contain only lowercase letters, numbers, hyphens, and underscores, and must start with a letter or number")
	}
	return nil
}

// Server is the durable record of a managed socket endpoint. The name and
// subdomain are unique across the deployment; the port is assigned once at
// provisioning time and never reused while the record exists.
type Server struct {
	ID        int64     `json:"id" bson:"_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	Subdomain string    `json:"subdomain" bson:"subdomain"`
	Port      int       `json:"port" bson:"port"`
	Status    Status    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Metrics is the live view of a server's runtime, zeroed when no runtime
// is registered for the server.
type Metrics struct {
	Rooms          []string `json:"rooms"`
	ConnectedUsers []string `json:"connectedUsers"`
	MessageCount   int64    `json:"messageCount"`
}

// ServerStatus combines the durable record fields with live metrics for
// the list operation.
type ServerStatus struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Port    int     `json:"port"`
	Status  Status  `json:"status"`
	Metrics Metrics `json:"metrics"`
}

// Action is a closed set of lifecycle actions accepted by the manage
// operation. Unknown action strings are rejected at the boundary.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ErrInvalidAction is returned for action strings outside the closed set
var ErrInvalidAction = errors.New("invalid action")

// ParseAction validates a raw action string
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionStart, ActionStop, ActionRestart:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}
