package models

import "time"

// UsageAttempt is an immutable record of one validation attempt against a key
type UsageAttempt struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	HWID        string    `json:"hwid"`
	IP          string    `json:"ip"`
	Success     bool      `json:"success"`
	AttemptedAt time.Time `json:"attempted_at"`
}
