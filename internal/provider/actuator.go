package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"subwatch/internal/domain"
)

const acceptPath = "/substitute/accept"

// Actuator performs the portal-side booking action.
type Actuator struct {
	sess *Session
	log  *zap.Logger
}

// NewActuator creates an actuator over an authenticated session.
func NewActuator(sess *Session, log *zap.Logger) *Actuator {
	return &Actuator{sess: sess, log: log}
}

// Book attempts to accept the job. Exactly one form submit per call: a blind
// resubmit on error could double-book, so retries are left to the caller's
// re-scrape cycle. The error return carries detail for OutcomeError only.
func (a *Actuator) Book(ctx context.Context, job domain.Job) (domain.Outcome, error) {
	if job.JobNumber == "" {
		return domain.OutcomeError, errors.New("job has no job number")
	}

	form := url.Values{}
	form.Set("jobNumber", job.JobNumber)
	form.Set("action", "accept")

	a.log.Info("attempting booking",
		zap.String("job_number", job.JobNumber),
		zap.String("school", job.School),
		zap.String("position", job.Position))

	doc, err := a.sess.postForm(ctx, acceptPath, form)
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("accept request: %w", err)
	}

	return classifyResponse(doc), nil
}

// classifyResponse reads the portal's result page. The portal answers 200
// for all three outcomes; only the page text distinguishes them.
func classifyResponse(doc *goquery.Document) domain.Outcome {
	text := strings.ToLower(doc.Text())
	switch {
	case strings.Contains(text, "confirmation number"),
		strings.Contains(text, "has been assigned to you"):
		return domain.OutcomeBooked
	case strings.Contains(text, "no longer available"),
		strings.Contains(text, "already been filled"):
		return domain.OutcomeTaken
	}
	return domain.OutcomeError
}
