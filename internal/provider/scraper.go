package provider

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"subwatch/internal/domain"
)

const availablePath = "/substitute/available"

// Scraper turns the portal's available-jobs page into typed Job records.
type Scraper struct {
	sess *Session
	log  *zap.Logger
}

// NewScraper creates a scraper over an authenticated session.
func NewScraper(sess *Session, log *zap.Logger) *Scraper {
	return &Scraper{sess: sess, log: log}
}

// Fetch scrapes the current postings. An empty list is a normal result, not
// an error: the board is simply quiet.
func (s *Scraper) Fetch(ctx context.Context) ([]domain.Job, error) {
	doc, err := s.sess.getDoc(ctx, availablePath)
	if err != nil {
		return nil, err
	}
	jobs := ParseJobs(doc)
	s.log.Info("scraped available jobs", zap.Int("count", len(jobs)))
	return jobs, nil
}

// ParseJobs extracts jobs from a listing page. Layout, per row class:
//
//	tr.job-listing            one posting; data-job carries the job number
//	tr.job-listing.multi-day  a multi-day posting; its day rows follow
//	tr.day-detail             one day of the preceding multi-day posting,
//	                          associated by the same data-job value
//
// Missing cells degrade to empty strings; rule logic never sees raw HTML.
func ParseJobs(doc *goquery.Document) []domain.Job {
	var jobs []domain.Job
	byNumber := make(map[string]int) // job number -> index into jobs

	doc.Find("#availableJobs tr").Each(func(_ int, row *goquery.Selection) {
		num, _ := row.Attr("data-job")

		switch {
		case row.HasClass("job-listing"):
			job := domain.Job{
				Date:      cell(row, "date"),
				Teacher:   cell(row, "teacher"),
				School:    cell(row, "school"),
				Position:  cell(row, "position"),
				StartTime: cell(row, "start"),
				EndTime:   cell(row, "end"),
				Duration:  cell(row, "duration"),
				ReportTo:  cell(row, "report-to"),
				JobNumber: num,
				MultiDay:  row.HasClass("multi-day"),
			}
			if job.Date == "" && job.School == "" && job.Position == "" {
				return // header or filler row
			}
			jobs = append(jobs, job)
			if num != "" {
				byNumber[num] = len(jobs) - 1
			}

		case row.HasClass("day-detail"):
			i, ok := byNumber[num]
			if !ok {
				return // orphan day row; drop rather than guess
			}
			jobs[i].Days = append(jobs[i].Days, domain.DaySegment{
				Date:      cell(row, "date"),
				StartTime: cell(row, "start"),
				EndTime:   cell(row, "end"),
				Duration:  cell(row, "duration"),
				Location:  cell(row, "location"),
			})
		}
	})

	return jobs
}

func cell(row *goquery.Selection, class string) string {
	return strings.TrimSpace(row.Find("td." + class).First().Text())
}
