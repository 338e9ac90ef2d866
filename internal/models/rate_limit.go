package models

import "time"

// RateLimitBucket is a fixed-window counter keyed by an arbitrary string
// such as "login:<email>". Count only reflects attempts since WindowStart.
type RateLimitBucket struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	UpdatedAt   time.Time `json:"updated_at"`
}
