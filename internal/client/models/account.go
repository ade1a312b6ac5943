package models

import "time"

// Account is a marketplace user as seen by this device.
type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// LastSyncedAt is stamped by the local store on every upsert.
	LastSyncedAt time.Time `json:"-"`
}
