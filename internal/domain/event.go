package domain

import (
	"encoding/json"
	"time"
)

// EventType classifies an audit event.
type EventType string

const (
	EventUserConnected    EventType = "USER_CONNECTED"
	EventUserDisconnected EventType = "USER_DISCONNECTED"
	EventMessageSent      EventType = "MESSAGE_SENT"
	EventRoomCreated      EventType = "ROOM_CREATED"
	EventServerStopped    EventType = "SERVER_STOPPED"
)

// Event is an immutable audit record of a lifecycle or message transition.
// ServerName is denormalized on purpose: events outlive server records.
type Event struct {
	ID         int64     `json:"id" bson:"_id,omitempty"`
	ServerName string    `json:"server_name" bson:"server_name"`
	EventType  EventType `json:"event_type" bson:"event_type"`
	Data       string    `json:"data" bson:"data"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// NewEvent builds an event with the payload JSON-encoded and the timestamp
// defaulted to now. A payload that fails to marshal degrades to "{}".
func NewEvent(serverName string, eventType EventType, payload any) *Event {
	data := "{}"
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = string(b)
		}
	}
	return &Event{
		ServerName: serverName,
		EventType:  eventType,
		Data:       data,
		Timestamp:  time.Now(),
	}
}
