package domain

// Job is one posting as scraped from the portal's available-jobs list.
// Immutable once produced; the store keeps its own JSON snapshot.
type Job struct {
	Date      string `json:"date"` // as displayed, e.g. "Monday, 9/15/2025"
	School    string `json:"school"`
	Position  string `json:"position"`
	Teacher   string `json:"teacher,omitempty"`
	ReportTo  string `json:"reportTo,omitempty"`
	JobNumber string `json:"jobNumber,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Duration  string `json:"duration"` // free text: "Full Day", "Half Day AM", ...

	MultiDay bool         `json:"multiDay,omitempty"`
	Days     []DaySegment `json:"days,omitempty"` // ordered, only when MultiDay
}

// DaySegment is one day of a multi-day job.
type DaySegment struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Location  string `json:"location,omitempty"`
}

// FirstDate returns the date the job starts on: the first segment for
// multi-day jobs, otherwise the job's own date field.
func (j Job) FirstDate() string {
	if j.MultiDay && len(j.Days) > 0 {
		return j.Days[0].Date
	}
	return j.Date
}
