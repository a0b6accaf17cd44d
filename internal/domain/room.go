package domain

import "time"

// Room is the durable record of a named room declared on a server. Rooms
// are deleted in bulk when their owning server is deleted.
type Room struct {
	ID        int64     `json:"id" bson:"_id,omitempty"`
	Name      string    `json:"name" bson:"name"`
	ServerID  int64     `json:"server_id" bson:"server_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
