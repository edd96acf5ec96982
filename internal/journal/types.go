package journal

import "time"

// ============================================================================
// Journal Type Definitions
// Responsibility: Define the audit events recorded next to the ledger
// ============================================================================

// EventType defines journal event types
type EventType string

const (
	EventBuild       EventType = "BUILD"        // Ledger created with a PENDING entry
	EventClaim       EventType = "CLAIM"        // Job moved PENDING -> IN_PROGRESS
	EventDone        EventType = "DONE"         // Job moved IN_PROGRESS -> DONE
	EventReset       EventType = "RESET"        // Operator moved IN_PROGRESS -> PENDING
	EventForceUnlock EventType = "FORCE_UNLOCK" // Operator removed a stuck lock file
)

// Event represents one journal record
type Event struct {
	Type      EventType `json:"type"`             // Event type
	File      string    `json:"file,omitempty"`   // Ledger filename the event refers to
	Worker    string    `json:"worker,omitempty"` // Owner id of the worker that wrote it
	Timestamp int64     `json:"timestamp"`        // Unix millisecond timestamp
	Checksum  uint32    `json:"checksum"`         // CRC32 checksum
}

// Time returns the event timestamp as time.Time
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// EventHandler is the function type for processing journal events during Replay
type EventHandler func(event Event) error
