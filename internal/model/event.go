package model

import "time"

// EventStatus is the lifecycle state of a discovery run.
type EventStatus string

const (
	EventInProgress EventStatus = "in_progress"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
	EventNoResults  EventStatus = "no_results"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventInProgress, EventCompleted, EventFailed, EventNoResults:
		return true
	}
	return false
}

// IsTerminal reports whether s finalizes a run.
func (s EventStatus) IsTerminal() bool {
	return s == EventCompleted || s == EventFailed || s == EventNoResults
}

// DiscoveryEvent logs one discovery run against a location hash.
type DiscoveryEvent struct {
	ID           string         `json:"id" db:"id"`
	LocationHash string         `json:"location_hash" db:"location_hash"`
	Status       EventStatus    `json:"status" db:"status"`
	Provider     string         `json:"provider" db:"provider"`
	UserID       *string        `json:"user_id,omitempty" db:"user_id"`
	ResultCount  int            `json:"result_count" db:"result_count"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	SearchedAt   time.Time      `json:"searched_at" db:"searched_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// Tombstone permanently blocks an address from rediscovery.
type Tombstone struct {
	ID                string    `json:"id" db:"id" yaml:"-"`
	Address           string    `json:"address" db:"address" yaml:"address"`
	NormalizedAddress string    `json:"normalized_address" db:"normalized_address" yaml:"-"`
	Reason            string    `json:"reason" db:"reason" yaml:"reason"`
	CreatedAt         time.Time `json:"created_at" db:"created_at" yaml:"-"`
}
