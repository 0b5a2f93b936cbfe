package domain

import "time"

// Status is the lifecycle state of a notification entry.
type Status string

const (
	StatusNotified      Status = "notified"       // confirmation request sent, awaiting button press
	StatusBookRequested Status = "book_requested" // booking approved (by user or auto-book), not yet attempted
	StatusBooking       Status = "booking"        // booking attempt in flight
	StatusBooked        Status = "booked"
	StatusFailed        Status = "failed"
	StatusIgnored       Status = "ignored"
	StatusExpired       Status = "expired"
)

// Terminal reports whether no further automatic transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusBooked, StatusFailed, StatusIgnored, StatusExpired:
		return true
	}
	return false
}

// Entry is the persisted lifecycle record for one fingerprinted job.
// At most one entry exists per fingerprint; a re-scraped job with a live
// entry is skipped as already handled.
type Entry struct {
	Fingerprint string
	Status      Status
	CreatedAt   time.Time  // UTC
	ExpiresAt   *time.Time // UTC, set only for confirmation-pending entries
	MessageID   int        // Telegram message to edit later; 0 if the send failed
	Job         Job        // snapshot taken at dispatch time
	Uncertain   bool       // classifier confidence carried over
	AutoBooked  bool       // created via the no-confirmation path
}
