package models

import "time"

// Device is a (user, device fingerprint) sighting record.
// FirstSeenAt is written once on insert and never updated.
type Device struct {
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	LastIP      *string   `json:"last_ip,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}
