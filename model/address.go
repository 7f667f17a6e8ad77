package model

import "time"

type AddressEntry struct {
	Key        string    `json:"key"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Fresh reports whether the entry is still within ttl at now.
func (a AddressEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.ResolvedAt) < ttl
}

type PendingAddressLookup struct {
	Key        string    `json:"key"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// AddressUpdate is published to address subscribers once a queued lookup
// resolves.
type AddressUpdate struct {
	Key       string  `json:"key"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}
