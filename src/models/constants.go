package models

// KeyStatus represents the blacklist status of a license key
type KeyStatus string

const (
	// KeyStatusActive indicates the key is not blacklisted
	KeyStatusActive KeyStatus = "active"
	// KeyStatusBlacklisted indicates the key has a blacklist entry
	KeyStatusBlacklisted KeyStatus = "blacklisted"
)

// Role is the authorization role of an account
type Role string

const (
	// RoleAdmin may manage keys and the blacklist
	RoleAdmin Role = "admin"
	// RoleUser may only authenticate
	RoleUser Role = "user"
)

// Blacklist reasons written by the validation engine
const (
	ReasonKeyExpired       = "Key expired"
	ReasonMaxUsesExceeded  = "Max uses exceeded"
	ReasonIPChange         = "IP change detected"
	ReasonKeySharing       = "Multiple HWIDs and IPs detected"
	ReasonTooManyHWIDFails = "Too many failed HWID attempts"
	ReasonManualBlacklist  = "Blacklisted by admin"
)
