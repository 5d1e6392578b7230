package models

import "time"

// ErrorRecord is an offline-telemetry record of a classified error and the
// recovery action that resolved it (or didn't). It is written by the
// recovery engine for later inspection and is never read back by the
// engine itself.
type ErrorRecord struct {
	Hash             string    `json:"hash"`
	NormalizedPattern string   `json:"normalized_pattern"`
	Sample           string    `json:"sample"`
	Solution         string    `json:"solution,omitempty"`
	Success          bool      `json:"success"`
	Occurrences      int       `json:"occurrences"`
	LastSeen         time.Time `json:"last_seen"`
	Context          string    `json:"context,omitempty"`
}
