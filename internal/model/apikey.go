package model

import "time"

// APIKey is a key issued with 'askdb key create' or the system API. Only
// its SHA-256 hash is stored; KeyPrefix ("askdb_" plus 8 hex characters)
// identifies it in listings and revocation.
type APIKey struct {
	ID        int64      `json:"id" db:"id"`
	KeyHash   string     `json:"-" db:"key_hash"`
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"`
	Label     string     `json:"label" db:"label"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty" db:"last_used"`
}

// Expired reports whether the key has an expiry at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}
