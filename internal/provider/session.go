// Package provider talks to the district's substitute portal: an
// authenticated cookie session, the available-jobs scraper, and the booking
// actuator. The rest of the system sees only typed jobs and outcomes.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"
)

// SessionExpiredError indicates the portal bounced a request to its login
// surface; the caller should re-authenticate and retry the cycle.
type SessionExpiredError struct {
	URL string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (redirected to login): %s", e.URL)
}

// IsSessionExpired checks if an error is a session-expiry redirect.
func IsSessionExpired(err error) bool {
	var expired *SessionExpiredError
	return errors.As(err, &expired)
}

// Session is one authenticated browser-like session against the portal.
// Open gives it a fresh cookie jar; Close drops it. Not safe for concurrent
// use, which is fine: the daemon runs cycles strictly serially.
type Session struct {
	client   *http.Client
	baseURL  string
	user     string
	pass     string
	log      *zap.Logger
	openedAt time.Time
}

// NewSession prepares a session; no I/O happens until Open/Login.
func NewSession(baseURL, user, pass string, log *zap.Logger) *Session {
	return &Session{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		user:    user,
		pass:    pass,
		log:     log,
	}
}

// Open creates a fresh cookie jar and HTTP client. Restarting a session is
// Close followed by Open+Login.
func (s *Session) Open() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	s.client = &http.Client{
		Jar:     jar,
		Timeout: 30 * time.Second,
	}
	s.openedAt = time.Now()
	return nil
}

// Age reports how long the session has been open, for restart-interval checks.
func (s *Session) Age() time.Duration {
	if s.openedAt.IsZero() {
		return 0
	}
	return time.Since(s.openedAt)
}

// Close drops the session's client and cookies.
func (s *Session) Close() {
	s.client = nil
	s.openedAt = time.Time{}
}

// Login posts the portal's login form and verifies we landed somewhere that
// is not the login page.
func (s *Session) Login(ctx context.Context) error {
	if s.client == nil {
		return errors.New("session not open")
	}

	form := url.Values{}
	form.Set("username", s.user)
	form.Set("password", s.pass)

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				s.baseURL+"/login", strings.NewReader(form.Encode()))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			setBrowserHeaders(req)

			resp, err := s.client.Do(req)
			if err != nil {
				s.log.Warn("login request failed, will retry", zap.Error(err))
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("login HTTP %d", resp.StatusCode)
			}
			if isLoginSurface(resp.Request.URL) {
				// Wrong credentials won't fix themselves on retry.
				return retry.Unrecoverable(errors.New("still on login page after submit"))
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.Info("retrying login", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.log.Info("portal login ok")
	return nil
}

// Refresh touches the portal home page to keep the session warm and detect
// expiry before the cycle does real work.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.getDoc(ctx, "/home")
	return err
}

// getDoc fetches a portal path and parses it. A redirect onto the login
// surface surfaces as SessionExpiredError instead of being retried.
func (s *Session) getDoc(ctx context.Context, path string) (*goquery.Document, error) {
	if s.client == nil {
		return nil, errors.New("session not open")
	}

	var doc *goquery.Document
	pageURL := s.baseURL + path

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			setBrowserHeaders(req)

			start := time.Now()
			resp, err := s.client.Do(req)
			if err != nil {
				s.log.Warn("portal request failed, will retry",
					zap.String("url", pageURL), zap.Error(err))
				return err
			}
			defer func() { _ = resp.Body.Close() }()

			s.log.Debug("portal request completed",
				zap.String("url", pageURL),
				zap.Int("status", resp.StatusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()))

			if isLoginSurface(resp.Request.URL) {
				return &SessionExpiredError{URL: resp.Request.URL.String()}
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			doc, err = goquery.NewDocumentFromReader(resp.Body)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("parse HTML: %w", err))
			}
			return nil
		},
		retry.Attempts(4),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			// Expiry needs a re-login, not another GET.
			return !IsSessionExpired(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.log.Info("retrying portal fetch", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// postForm submits a form and returns the parsed response page. No retries:
// the only caller is the booking actuator, where a blind resubmit could
// double-book.
func (s *Session) postForm(ctx context.Context, path string, form url.Values) (*goquery.Document, error) {
	if s.client == nil {
		return nil, errors.New("session not open")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setBrowserHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if isLoginSurface(resp.Request.URL) {
		return nil, &SessionExpiredError{URL: resp.Request.URL.String()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func isLoginSurface(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.Contains(p, "login") || strings.Contains(p, "signin")
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
