package engine

import (
	"fmt"
	"strings"
	"time"

	"subwatch/internal/domain"
)

// Message texts for every lifecycle edge. Kept together so the whole user
// conversation can be reviewed in one place.

func jobSummary(j domain.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏫 %s\n📚 %s\n📅 %s", j.School, j.Position, j.Date)
	if j.StartTime != "" || j.EndTime != "" {
		fmt.Fprintf(&b, "\n🕐 %s – %s", j.StartTime, j.EndTime)
	}
	if j.Duration != "" {
		fmt.Fprintf(&b, " (%s)", j.Duration)
	}
	if j.Teacher != "" {
		fmt.Fprintf(&b, "\n👤 for %s", j.Teacher)
	}
	if j.MultiDay && len(j.Days) > 0 {
		fmt.Fprintf(&b, "\n📆 %d days:", len(j.Days))
		for _, d := range j.Days {
			fmt.Fprintf(&b, "\n   • %s %s–%s", d.Date, d.StartTime, d.EndTime)
			if d.Location != "" {
				fmt.Fprintf(&b, " @ %s", d.Location)
			}
		}
	}
	return b.String()
}

func confirmText(j domain.Job, reason string, daysAhead int, ttl time.Duration) string {
	lead := "date unknown"
	if daysAhead >= 0 {
		lead = fmt.Sprintf("%d days out", daysAhead)
	}
	return fmt.Sprintf("❓ New job — confirm within %s\n\n%s\n\nℹ️ %s (%s)",
		ttl.String(), jobSummary(j), reason, lead)
}

func autoBookText(j domain.Job) string {
	return "⚡ Auto-booking in progress\n\n" + jobSummary(j)
}

func bookedText(e domain.Entry) string {
	text := "✅ Booked!\n\n" + jobSummary(e.Job)
	if e.AutoBooked {
		text += "\n\n↩️ Auto-booked with cancellation slack: you can still cancel on the portal until 48h before start."
	}
	return text
}

func takenText(e domain.Entry) string {
	return "😔 Already taken — someone else got there first.\n\n" + jobSummary(e.Job)
}

func bookingErrorText(e domain.Entry, portalURL string) string {
	return fmt.Sprintf("⚠️ Booking failed — try it by hand: %s\n\n%s", portalURL, jobSummary(e.Job))
}

func ignoredText(e domain.Entry) string {
	return "🚫 Ignored.\n\n" + jobSummary(e.Job)
}

func expiredText(e domain.Entry) string {
	return "⏰ Confirmation window passed.\n\n" + jobSummary(e.Job)
}

func summaryText(created, notified, autoBooked, uncertain int) string {
	return fmt.Sprintf("📋 Cycle summary: %d new match(es) — %d awaiting confirmation, %d auto-booking, %d flagged uncertain.",
		created, notified, autoBooked, uncertain)
}

func statusText(c domain.Counters, byStatus map[domain.Status]int, heartbeat *time.Time, paused bool) string {
	var b strings.Builder
	b.WriteString("🧾 subwatch status\n")
	if paused {
		b.WriteString("⏸ Scraping paused (/resume to continue)\n")
	}
	if heartbeat != nil {
		fmt.Fprintf(&b, "💓 Last cycle: %s\n", heartbeat.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nTotals: %d matched (%d uncertain), %d notified, %d auto-booked\n",
		c.Matched, c.UncertainMatched, c.Notified, c.AutoBooked)
	fmt.Fprintf(&b, "Outcomes: %d booked, %d taken, %d failed, %d ignored, %d expired\n",
		c.Booked, c.Taken, c.Failed, c.Ignored, c.Expired)

	if len(byStatus) > 0 {
		b.WriteString("\nEntries:")
		for _, s := range []domain.Status{
			domain.StatusNotified, domain.StatusBookRequested, domain.StatusBooking,
			domain.StatusBooked, domain.StatusFailed, domain.StatusIgnored, domain.StatusExpired,
		} {
			if n := byStatus[s]; n > 0 {
				fmt.Fprintf(&b, " %s=%d", s, n)
			}
		}
	}
	return b.String()
}

// bookIgnoreActions builds the two-button confirmation row for a fingerprint.
func bookIgnoreActions(fingerprint string) []domain.Action {
	return []domain.Action{
		{Label: "✅ Book it", Data: "book:" + fingerprint},
		{Label: "🚫 Ignore", Data: "ignore:" + fingerprint},
	}
}
