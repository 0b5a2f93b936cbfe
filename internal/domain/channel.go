package domain

// Action is one actionable button attached to an outbound notification:
// a label shown to the user and an opaque tag returned when pressed.
type Action struct {
	Label string
	Data  string
}

// Event is a pending user interaction drained from the notification channel.
// Button presses carry an acknowledgement ID and a fingerprint; bare chat
// commands like /status carry only the action name.
type Event struct {
	ID          string // channel-side ack handle; empty for chat commands
	Action      string // "book", "ignore", "status", "pause", "resume"
	Fingerprint string
}

// Outcome is the tri-state result of a booking attempt.
type Outcome int

const (
	// OutcomeError covers anything but a clear acceptance or a clear miss.
	OutcomeError Outcome = iota
	// OutcomeBooked means the provider confirmed the assignment.
	OutcomeBooked
	// OutcomeTaken means someone else claimed the job first. Expected
	// ordering race between provider state and the local store, not a failure.
	OutcomeTaken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeTaken:
		return "taken"
	}
	return "error"
}
