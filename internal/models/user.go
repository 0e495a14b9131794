package models

import "time"

// User is the persisted account record. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"userId" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}
