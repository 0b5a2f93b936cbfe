package domain

// Counters are the cumulative run statistics, persisted at cycle boundaries
// and reloaded at process start. Purely observational: nothing in the
// lifecycle logic reads them back.
type Counters struct {
	Matched          int64
	UncertainMatched int64
	Notified         int64
	AutoBooked       int64
	Booked           int64
	Taken            int64
	Failed           int64
	Ignored          int64
	Expired          int64
}
