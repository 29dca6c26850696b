package models

import "time"

// BlacklistEntry marks a key as permanently rejected
type BlacklistEntry struct {
	Key           string    `json:"key"`
	Reason        string    `json:"reason"`
	BlacklistedAt time.Time `json:"blacklisted_at"`
}
