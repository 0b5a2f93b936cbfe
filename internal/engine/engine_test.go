package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"subwatch/internal/classify"
	"subwatch/internal/domain"
	"subwatch/internal/store"
)

// --- fakes ---

type sentMsg struct {
	text    string
	actions []domain.Action
}

type fakeChannel struct {
	sent    []sentMsg
	edits   map[int]string
	acks    map[string]string
	events  []domain.Event
	next    int
	sendErr error
	nextID  int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{edits: map[int]string{}, acks: map[string]string{}}
}

func (c *fakeChannel) Send(text string, actions []domain.Action) (int, error) {
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.sent = append(c.sent, sentMsg{text: text, actions: actions})
	c.nextID++
	return c.nextID, nil
}

func (c *fakeChannel) Edit(messageID int, text string) error {
	c.edits[messageID] = text
	return nil
}

func (c *fakeChannel) Poll(cursor int) ([]domain.Event, int, error) {
	next := c.next
	if next < cursor {
		next = cursor
	}
	return c.events, next, nil
}

func (c *fakeChannel) Ack(eventID, toast string) error {
	c.acks[eventID] = toast
	return nil
}

type fakeActuator struct {
	outcome domain.Outcome
	err     error
	booked  []string // job numbers, in call order
}

func (a *fakeActuator) Book(_ context.Context, job domain.Job) (domain.Outcome, error) {
	a.booked = append(a.booked, job.JobNumber)
	return a.outcome, a.err
}

// --- harness ---

func testRules(t *testing.T) *classify.Rules {
	t.Helper()
	r, err := classify.LoadRules("")
	require.NoError(t, err)
	return r
}

func newTestEngine(t *testing.T) (*Engine, *fakeChannel, *fakeActuator, store.Repo) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	ch := newFakeChannel()
	act := &fakeActuator{outcome: domain.OutcomeBooked}
	eng := New(repo, ch, act, testRules(t), Options{
		ConfirmTTL:  5 * time.Minute,
		MinLeadDays: 3,
		PortalURL:   "https://portal.example.com",
	}, loc, zap.NewNop())

	// Freeze the clock mid-morning local time.
	frozen := time.Date(2025, time.September, 12, 9, 0, 0, 0, loc)
	eng.now = func() time.Time { return frozen }
	return eng, ch, act, repo
}

func certainJob(daysOut string) domain.Job {
	return domain.Job{
		Date:      daysOut,
		School:    "Timpanogos High School",
		Position:  "History Teacher",
		Duration:  "Full Day",
		JobNumber: "12345",
	}
}

// --- dispatch ---

func TestDispatch_ShortLeadGoesToConfirmation(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()

	// Two days out: under the auto-book lead, needs a button press.
	job := certainJob("9/14/2025")
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))

	fp := domain.Fingerprint(job)
	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotified, entry.Status)
	assert.False(t, entry.AutoBooked)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, eng.now().UTC().Add(5*time.Minute), *entry.ExpiresAt)

	require.Len(t, ch.sent, 2) // confirmation + cycle summary
	require.Len(t, ch.sent[0].actions, 2)
	assert.Equal(t, "book:"+fp, ch.sent[0].actions[0].Data)
	assert.Equal(t, "ignore:"+fp, ch.sent[0].actions[1].Data)

	assert.Empty(t, act.booked)
	assert.Equal(t, int64(1), eng.counters.Matched)
	assert.Equal(t, int64(1), eng.counters.Notified)
	assert.Equal(t, int64(0), eng.counters.AutoBooked)
}

func TestDispatch_AutoBooksWithEnoughLead(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()

	// Three days out: certain match, auto-book path, booked in the same pass.
	job := certainJob("9/15/2025")
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))

	fp := domain.Fingerprint(job)
	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBooked, entry.Status)
	assert.True(t, entry.AutoBooked)
	assert.Nil(t, entry.ExpiresAt)

	require.Equal(t, []string{"12345"}, act.booked)
	// Auto-book notice edited to the booked confirmation, then cycle summary.
	require.Len(t, ch.sent, 2)
	assert.Contains(t, ch.sent[0].text, "Auto-booking")
	assert.Empty(t, ch.sent[0].actions)
	assert.Contains(t, ch.edits[1], "Booked")

	assert.Equal(t, int64(1), eng.counters.AutoBooked)
	assert.Equal(t, int64(1), eng.counters.Booked)
}

func TestDispatch_UncertainNeverAutoBooks(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()

	// Unlisted subject: uncertain match even with plenty of lead.
	job := domain.Job{
		Date: "9/20/2025", School: "Timpanogos High School",
		Position: "Art Teacher", Duration: "Full Day", JobNumber: "777",
	}
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))

	entry, err := repo.GetEntry(ctx, domain.Fingerprint(job))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotified, entry.Status)
	assert.True(t, entry.Uncertain)
	assert.Empty(t, act.booked)
	require.Len(t, ch.sent, 2)
	assert.Equal(t, int64(1), eng.counters.UncertainMatched)
}

func TestDispatch_RejectedJobsLeaveNoTrace(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()

	job := domain.Job{
		Date: "9/15/2025", School: "Timpanogos High School",
		Position: "Spanish Teacher", Duration: "Full Day",
	}
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))

	has, err := repo.HasEntry(ctx, domain.Fingerprint(job))
	require.NoError(t, err)
	assert.False(t, has)
	assert.Empty(t, ch.sent) // not even a summary
	assert.Equal(t, int64(0), eng.counters.Matched)
}

func TestDispatch_SkipsExistingEntries(t *testing.T) {
	eng, ch, _, _ := newTestEngine(t)
	ctx := context.Background()

	job := certainJob("9/14/2025")
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))
	sentBefore := len(ch.sent)

	// Re-scrape surfaces the same job; nothing new happens.
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))
	assert.Equal(t, sentBefore, len(ch.sent))
	assert.Equal(t, int64(1), eng.counters.Matched)
}

func TestDispatch_SendFailureStillCreatesEntry(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	ch.sendErr = errors.New("telegram down")

	job := certainJob("9/14/2025")
	require.NoError(t, eng.Dispatch(ctx, []domain.Job{job}))

	// The entry exists with no message handle, so the next scrape won't
	// re-notify and the expiry sweep can still retire it.
	entry, err := repo.GetEntry(ctx, domain.Fingerprint(job))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotified, entry.Status)
	assert.Equal(t, 0, entry.MessageID)
}

// --- callbacks ---

func notifiedEntry(t *testing.T, eng *Engine, repo store.Repo, job domain.Job) string {
	t.Helper()
	require.NoError(t, eng.Dispatch(context.Background(), []domain.Job{job}))
	fp := domain.Fingerprint(job)
	entry, err := repo.GetEntry(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, domain.StatusNotified, entry.Status)
	return fp
}

func TestCallbacks_BookButton(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	ch.events = []domain.Event{{ID: "cb1", Action: "book", Fingerprint: fp}}
	ch.next = 100
	require.NoError(t, eng.ProcessCallbacks(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBookRequested, entry.Status)
	assert.Equal(t, "Booking…", ch.acks["cb1"])

	cursor, err := repo.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, cursor)
}

func TestCallbacks_IgnoreButton(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	ch.events = []domain.Event{{ID: "cb1", Action: "ignore", Fingerprint: fp}}
	require.NoError(t, eng.ProcessCallbacks(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, entry.Status)
	assert.Equal(t, "Ignored.", ch.acks["cb1"])
	assert.Contains(t, ch.edits[entry.MessageID], "Ignored")
	assert.Equal(t, int64(1), eng.counters.Ignored)
}

func TestCallbacks_UnknownFingerprint(t *testing.T) {
	eng, ch, _, _ := newTestEngine(t)

	ch.events = []domain.Event{{ID: "cb1", Action: "book", Fingerprint: "deadbeef"}}
	require.NoError(t, eng.ProcessCallbacks(context.Background()))
	assert.Contains(t, ch.acks["cb1"], "not found")
}

func TestCallbacks_StaleButtonOnSettledEntry(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	ok, err := repo.Transition(ctx, fp, domain.StatusNotified, domain.StatusIgnored)
	require.NoError(t, err)
	require.True(t, ok)

	// A second press on the old buttons only reports the current state.
	ch.events = []domain.Event{{ID: "cb2", Action: "book", Fingerprint: fp}}
	require.NoError(t, eng.ProcessCallbacks(ctx))
	assert.Equal(t, "Already ignored.", ch.acks["cb2"])

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIgnored, entry.Status)
}

func TestCallbacks_BookAfterExpirySweep(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	// Sweep the entry past its confirmation window, then press its old button.
	base := eng.now()
	eng.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, eng.SweepExpired(ctx))

	ch.events = []domain.Event{{ID: "cb1", Action: "book", Fingerprint: fp}}
	require.NoError(t, eng.ProcessCallbacks(ctx))
	assert.Equal(t, "Already expired.", ch.acks["cb1"])

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, entry.Status)
}

func TestCallbacks_StatusCommand(t *testing.T) {
	eng, ch, _, _ := newTestEngine(t)

	ch.events = []domain.Event{{Action: "status"}}
	require.NoError(t, eng.ProcessCallbacks(context.Background()))
	require.Len(t, ch.sent, 1)
	assert.Contains(t, ch.sent[0].text, "status")
}

func TestCallbacks_PauseResume(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()

	ch.events = []domain.Event{{Action: "pause"}}
	require.NoError(t, eng.ProcessCallbacks(ctx))
	paused, err := repo.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	ch.events = []domain.Event{{Action: "resume"}}
	require.NoError(t, eng.ProcessCallbacks(ctx))
	paused, err = repo.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

// --- booking execution ---

func bookRequestedEntry(t *testing.T, eng *Engine, ch *fakeChannel, repo store.Repo, job domain.Job) string {
	t.Helper()
	fp := notifiedEntry(t, eng, repo, job)
	ok, err := repo.Transition(context.Background(), fp, domain.StatusNotified, domain.StatusBookRequested)
	require.NoError(t, err)
	require.True(t, ok)
	return fp
}

func TestExecuteBookings_Success(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()
	fp := bookRequestedEntry(t, eng, ch, repo, certainJob("9/14/2025"))

	act.outcome = domain.OutcomeBooked
	require.NoError(t, eng.ExecuteBookings(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBooked, entry.Status)
	assert.Contains(t, ch.edits[entry.MessageID], "Booked")
	assert.Equal(t, int64(1), eng.counters.Booked)
	assert.Equal(t, []string{"12345"}, act.booked)
}

func TestExecuteBookings_Taken(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()
	fp := bookRequestedEntry(t, eng, ch, repo, certainJob("9/14/2025"))

	act.outcome = domain.OutcomeTaken
	require.NoError(t, eng.ExecuteBookings(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	assert.Contains(t, ch.edits[entry.MessageID], "taken")
	assert.Equal(t, int64(1), eng.counters.Taken)
	assert.Equal(t, int64(0), eng.counters.Failed)
}

func TestExecuteBookings_Error(t *testing.T) {
	eng, ch, act, repo := newTestEngine(t)
	ctx := context.Background()
	fp := bookRequestedEntry(t, eng, ch, repo, certainJob("9/14/2025"))

	act.outcome = domain.OutcomeError
	act.err = errors.New("portal hiccup")
	require.NoError(t, eng.ExecuteBookings(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, entry.Status)
	// The failure message carries the manual fallback link.
	assert.Contains(t, ch.edits[entry.MessageID], "https://portal.example.com")
	assert.Equal(t, int64(1), eng.counters.Failed)
}

func TestExecuteBookings_NothingPending(t *testing.T) {
	eng, _, act, _ := newTestEngine(t)
	require.NoError(t, eng.ExecuteBookings(context.Background()))
	assert.Empty(t, act.booked)
}

// --- expiry sweep ---

func TestSweepExpired(t *testing.T) {
	eng, ch, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	// Move the clock past the confirmation window.
	base := eng.now()
	eng.now = func() time.Time { return base.Add(10 * time.Minute) }

	require.NoError(t, eng.SweepExpired(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, entry.Status)
	assert.Contains(t, ch.edits[entry.MessageID], "Confirmation window passed")
	assert.Equal(t, int64(1), eng.counters.Expired)

	// A second sweep finds nothing in notified; no double count.
	require.NoError(t, eng.SweepExpired(ctx))
	assert.Equal(t, int64(1), eng.counters.Expired)
}

func TestSweepExpired_FreshEntriesUntouched(t *testing.T) {
	eng, _, _, repo := newTestEngine(t)
	ctx := context.Background()
	fp := notifiedEntry(t, eng, repo, certainJob("9/14/2025"))

	require.NoError(t, eng.SweepExpired(ctx))

	entry, err := repo.GetEntry(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotified, entry.Status)
}

// --- counters persistence round trip through the engine ---

func TestRestoreCounters(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	want := domain.Counters{Matched: 5, Booked: 2}
	eng.RestoreCounters(want)
	assert.Equal(t, want, eng.Counters())
}
