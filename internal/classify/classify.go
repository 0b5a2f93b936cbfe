// Package classify decides which scraped jobs are worth acting on.
//
// Classification is a pure function of a job and the rule set: no I/O, no
// errors for any job shape. A job either matches (possibly flagged uncertain,
// meaning it always needs human confirmation) or is rejected with a reason.
package classify

import (
	"fmt"

	"subwatch/internal/domain"
)

// Result is the classifier's verdict on one job. Ephemeral: recomputed every
// cycle from the current rules, never persisted.
type Result struct {
	Match     bool
	Uncertain bool
	Reason    string
}

type axis int

const (
	axisUncertain axis = iota
	axisAccept
	axisReject
)

// subjectAxis evaluates the position against the reject list, then the accept
// list. Reject wins; matching neither list is uncertain, not a rejection.
func (r *Rules) subjectAxis(position string) (axis, string) {
	if p, ok := containsAny(position, r.Subjects.Reject); ok {
		return axisReject, p
	}
	if p, ok := containsAny(position, r.Subjects.Accept); ok {
		return axisAccept, p
	}
	return axisUncertain, ""
}

// levelAccepted evaluates the school name against level patterns. Unlike the
// subject axis the default is rejection: a school matching neither list is
// not accepted.
func (r *Rules) levelAccepted(school string) bool {
	if _, ok := containsAny(school, r.SchoolLevels.Reject); ok {
		return false
	}
	_, ok := containsAny(school, r.SchoolLevels.Accept)
	return ok
}

func (r *Rules) onWatchlist(school string) bool {
	_, ok := containsAny(school, r.Schools.Watchlist)
	return ok
}

func (r *Rules) nearby(school string) bool {
	_, ok := containsAny(school, r.Schools.Nearby)
	return ok
}

// Classify applies the rule precedence to one job.
//
// The step order is load-bearing: a watchlisted school is evaluated before
// the school-level default, so a full-day job there becomes an uncertain
// match instead of an outright reject, and a watchlisted half-day job is
// rejected without ever reaching the nearby exemption.
func (r *Rules) Classify(j domain.Job) Result {
	subject, subjectPat := r.subjectAxis(j.Position)
	dur := domain.ParseDurationKind(j.Duration)

	// 1. Reject-listed subject loses to everything.
	if subject == axisReject {
		return Result{Reason: fmt.Sprintf("subject matches reject pattern %q", subjectPat)}
	}

	// 2. Watchlisted school: a full day with a non-rejected subject is worth
	// a look, but only with confirmation.
	if r.onWatchlist(j.School) {
		if dur == domain.DurationFullDay {
			return Result{Match: true, Uncertain: true, Reason: "full day at watchlist school"}
		}
		return Result{Reason: "watchlist school, not a full day"}
	}

	// 3. Conservative school-level default: unknown level is a rejection.
	if !r.levelAccepted(j.School) {
		return Result{Reason: "school level not accepted"}
	}

	switch dur {
	case domain.DurationFullDay:
		if subject == axisAccept {
			return Result{Match: true, Reason: fmt.Sprintf("full day, subject matches %q", subjectPat)}
		}
		// Subject on neither list: match, but flag for confirmation.
		return Result{Match: true, Uncertain: true, Reason: "full day, unlisted subject"}

	case domain.DurationHalfDay:
		// Half days are only worth it nearby, and only for a sure subject.
		if subject == axisAccept && r.nearby(j.School) {
			return Result{Match: true, Uncertain: true, Reason: "half day at nearby school"}
		}
		return Result{Reason: "half day, not nearby or subject unlisted"}
	}

	return Result{Reason: "duration not recognized"}
}
