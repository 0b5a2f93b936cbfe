package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"subwatch/internal/domain"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		html string
		want domain.Outcome
	}{
		{"<p>Your confirmation number is 998877.</p>", domain.OutcomeBooked},
		{"<p>Job #12345 has been assigned to you.</p>", domain.OutcomeBooked},
		{"<p>This job is no longer available.</p>", domain.OutcomeTaken},
		{"<p>This position has already been filled.</p>", domain.OutcomeTaken},
		{"<p>Something went wrong.</p>", domain.OutcomeError},
		{"", domain.OutcomeError},
	}
	for _, c := range cases {
		if got := classifyResponse(docFrom(t, c.html)); got != c.want {
			t.Errorf("classifyResponse(%q): want %v, got %v", c.html, c.want, got)
		}
	}
}

func TestIsSessionExpired(t *testing.T) {
	base := &SessionExpiredError{URL: "https://portal/login"}
	if !IsSessionExpired(base) {
		t.Fatal("direct SessionExpiredError should match")
	}
	if !IsSessionExpired(fmt.Errorf("refresh: %w", base)) {
		t.Fatal("wrapped SessionExpiredError should match")
	}
	if IsSessionExpired(errors.New("timeout")) {
		t.Fatal("unrelated error should not match")
	}
	if IsSessionExpired(nil) {
		t.Fatal("nil should not match")
	}
}
