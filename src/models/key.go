package models

import "time"

// Key represents a license key record
type Key struct {
	Key         string     `json:"key"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	MaxUses     *int       `json:"max_uses"`
	CurrentUses int        `json:"current_uses"`
	HWID        *string    `json:"hwid"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// IsExpired returns true if the key has an expiry that lies before now
func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// IsExhausted returns true if the key has a usage cap and has reached it
func (k *Key) IsExhausted() bool {
	return k.MaxUses != nil && k.CurrentUses >= *k.MaxUses
}

// IsBound returns true once a hardware fingerprint has been bound to the key
func (k *Key) IsBound() bool {
	return k.HWID != nil && *k.HWID != ""
}

// BoundTo reports whether the key is bound to exactly hwid
func (k *Key) BoundTo(hwid string) bool {
	return k.IsBound() && *k.HWID == hwid
}

// Clone returns a deep copy of the key
func (k *Key) Clone() *Key {
	c := *k
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		c.ExpiresAt = &t
	}
	if k.MaxUses != nil {
		n := *k.MaxUses
		c.MaxUses = &n
	}
	if k.HWID != nil {
		h := *k.HWID
		c.HWID = &h
	}
	if k.LastUsed != nil {
		t := *k.LastUsed
		c.LastUsed = &t
	}
	return &c
}

// KeyListing is a key together with its blacklist status, as shown to admins
type KeyListing struct {
	Key
	Status KeyStatus `json:"status"`
}
