package backfill_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sadeshahansana5-cloud/mediadex/internal/backfill"
	"github.com/sadeshahansana5-cloud/mediadex/internal/catalog"
	"github.com/sadeshahansana5-cloud/mediadex/internal/config"
	"github.com/sadeshahansana5-cloud/mediadex/internal/flags"
	"github.com/sadeshahansana5-cloud/mediadex/internal/ingest"
	"github.com/sadeshahansana5-cloud/mediadex/internal/source"
	"github.com/sadeshahansana5-cloud/mediadex/internal/testutil"
)

const testChannel int64 = -1003333

var testChannels = catalog.ChannelMap{
	SinhalaSub:  -1001111,
	Games:       -1002222,
	MovieSeries: testChannel,
}

// fakeSource scripts FetchMessage behavior per message id.
type fakeSource struct {
	mu         sync.Mutex
	connectErr error
	fetchCount map[int64]int
	handler    func(messageID int64, attempt int) (*source.MessageDescriptor, error)
}

func newFakeSource(handler func(messageID int64, attempt int) (*source.MessageDescriptor, error)) *fakeSource {
	return &fakeSource{
		fetchCount: make(map[int64]int),
		handler:    handler,
	}
}

func (f *fakeSource) Connect(ctx context.Context) error { return f.connectErr }
func (f *fakeSource) Close() error                      { return nil }

func (f *fakeSource) FetchMessage(ctx context.Context, channelID, messageID int64) (*source.MessageDescriptor, error) {
	f.mu.Lock()
	f.fetchCount[messageID]++
	attempt := f.fetchCount[messageID]
	f.mu.Unlock()
	return f.handler(messageID, attempt)
}

func (f *fakeSource) attempts(messageID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount[messageID]
}

func mediaMessage(messageID int64, contentKey, fileName string) *source.MessageDescriptor {
	return &source.MessageDescriptor{
		ChannelID: testChannel,
		MessageID: messageID,
		Document: &source.DocumentAttachment{
			ContentKey:  contentKey,
			TransferRef: "ref-" + contentKey,
			FileName:    fileName,
			SizeBytes:   1024,
		},
	}
}

func textMessage(messageID int64) *source.MessageDescriptor {
	return &source.MessageDescriptor{
		ChannelID: testChannel,
		MessageID: messageID,
		Caption:   "just text",
	}
}

// recordingReporter counts deliveries.
type recordingReporter struct {
	mu        sync.Mutex
	progress  int
	summaries []backfill.Snapshot
}

func (r *recordingReporter) Progress(ctx context.Context, snap backfill.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress++
	return nil
}

func (r *recordingReporter) Summary(ctx context.Context, snap backfill.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, snap)
	return nil
}

func (r *recordingReporter) summaryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.summaries)
}

func (r *recordingReporter) lastSummary() backfill.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries[len(r.summaries)-1]
}

func testConfig() config.BackfillConfig {
	return config.BackfillConfig{
		ItemDelay:        time.Millisecond,
		ProgressInterval: 2,
		ProposalTTL:      time.Minute,
	}
}

func newTestCoordinator(t *testing.T, src source.Source, reporter backfill.Reporter) (*backfill.Coordinator, *testutil.TestDB) {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	store := catalog.NewStore(tdb.Conn, tdb.Logger)
	pipeline := ingest.NewPipeline(store, testChannels, flags.New(false, false), nil, nil, tdb.Logger)
	return backfill.NewCoordinator(src, pipeline, reporter, testConfig(), tdb.Logger), tdb
}

func confirmRun(t *testing.T, c *backfill.Coordinator, lastMessageID, skipOffset int64) *backfill.Run {
	t.Helper()
	proposal, err := c.Propose(testChannel, lastMessageID)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	run, err := c.Confirm(proposal.ID, skipOffset)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	return run
}

func TestCoordinator_Propose_Validation(t *testing.T) {
	c, tdb := newTestCoordinator(t, newFakeSource(nil), nil)
	defer tdb.Close()

	if _, err := c.Propose(0, 100); !errors.Is(err, backfill.ErrInvalidRange) {
		t.Errorf("Propose(0, 100) error = %v, want ErrInvalidRange", err)
	}
	if _, err := c.Propose(testChannel, 0); !errors.Is(err, backfill.ErrInvalidRange) {
		t.Errorf("Propose(channel, 0) error = %v, want ErrInvalidRange", err)
	}
}

func TestCoordinator_Confirm_UnknownProposal(t *testing.T) {
	c, tdb := newTestCoordinator(t, newFakeSource(nil), nil)
	defer tdb.Close()

	if _, err := c.Confirm("no-such-proposal", 0); !errors.Is(err, backfill.ErrProposalNotFound) {
		t.Errorf("Confirm() error = %v, want ErrProposalNotFound", err)
	}
}

func TestCoordinator_Confirm_InvalidSkip(t *testing.T) {
	c, tdb := newTestCoordinator(t, newFakeSource(nil), nil)
	defer tdb.Close()

	proposal, err := c.Propose(testChannel, 10)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if _, err := c.Confirm(proposal.ID, 10); !errors.Is(err, backfill.ErrInvalidRange) {
		t.Errorf("Confirm(skip=last) error = %v, want ErrInvalidRange", err)
	}
}

func TestCoordinator_Run_CountsOutcomes(t *testing.T) {
	// ids 1..6: media, deleted, fetch error, text-only, duplicate of 1, media.
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		switch id {
		case 1:
			return mediaMessage(1, "key-a", "Movie.A.1080p.mkv"), nil
		case 2:
			return nil, source.ErrDeleted
		case 3:
			return nil, errors.New("upstream hiccup")
		case 4:
			return textMessage(4), nil
		case 5:
			return mediaMessage(5, "key-a", "Movie.A.1080p.mkv"), nil
		default:
			return mediaMessage(6, "key-b", "Movie.B.720p.mkv"), nil
		}
	})
	reporter := &recordingReporter{}
	c, tdb := newTestCoordinator(t, src, reporter)
	defer tdb.Close()

	run := confirmRun(t, c, 6, 0)
	run.Wait()

	if got := run.State(); got != backfill.StateCompleted {
		t.Fatalf("State() = %q, want %q", got, backfill.StateCompleted)
	}

	counters := run.CountersSnapshot()
	if counters.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", counters.Fetched)
	}
	if counters.Saved != 2 {
		t.Errorf("Saved = %d, want 2", counters.Saved)
	}
	if counters.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", counters.Duplicates)
	}
	if counters.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", counters.Deleted)
	}
	if counters.NonMedia != 1 {
		t.Errorf("NonMedia = %d, want 1", counters.NonMedia)
	}
	if counters.Errors != 1 {
		t.Errorf("Errors = %d, want 1", counters.Errors)
	}

	if reporter.summaryCount() != 1 {
		t.Errorf("summary deliveries = %d, want 1", reporter.summaryCount())
	}
	if got := reporter.lastSummary().State; got != backfill.StateCompleted {
		t.Errorf("summary state = %q, want %q", got, backfill.StateCompleted)
	}
}

func TestCoordinator_Run_SkipOffset(t *testing.T) {
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		return mediaMessage(id, fmt.Sprintf("key-%d", id), fmt.Sprintf("File.%d.mkv", id)), nil
	})
	c, tdb := newTestCoordinator(t, src, nil)
	defer tdb.Close()

	run := confirmRun(t, c, 5, 3)
	run.Wait()

	// Only ids 4 and 5 are in range; the skip offset itself is excluded.
	if src.attempts(3) != 0 {
		t.Errorf("message 3 fetched %d times, want 0", src.attempts(3))
	}
	if src.attempts(4) != 1 || src.attempts(5) != 1 {
		t.Errorf("messages 4/5 fetched %d/%d times, want 1/1", src.attempts(4), src.attempts(5))
	}
	if counters := run.CountersSnapshot(); counters.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", counters.Fetched)
	}
}

func TestCoordinator_Run_ConnectFailureIsFatal(t *testing.T) {
	src := newFakeSource(nil)
	src.connectErr = errors.New("invalid credentials")
	reporter := &recordingReporter{}
	c, tdb := newTestCoordinator(t, src, reporter)
	defer tdb.Close()

	run := confirmRun(t, c, 5, 0)
	run.Wait()

	if got := run.State(); got != backfill.StateFailed {
		t.Errorf("State() = %q, want %q", got, backfill.StateFailed)
	}
	if reporter.summaryCount() != 1 {
		t.Errorf("summary deliveries = %d, want 1", reporter.summaryCount())
	}
	if snap := reporter.lastSummary(); snap.Error == "" {
		t.Error("summary Error empty, want failure message")
	}
}

func TestCoordinator_Run_RateLimitRetriesSameID(t *testing.T) {
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		if id == 1 && attempt == 1 {
			return nil, &source.RateLimitedError{RetryAfter: 5 * time.Millisecond}
		}
		return mediaMessage(id, fmt.Sprintf("key-%d", id), fmt.Sprintf("File.%d.mkv", id)), nil
	})
	c, tdb := newTestCoordinator(t, src, nil)
	defer tdb.Close()

	run := confirmRun(t, c, 2, 0)
	run.Wait()

	if src.attempts(1) != 2 {
		t.Errorf("message 1 fetched %d times, want 2 (retry after rate limit)", src.attempts(1))
	}

	counters := run.CountersSnapshot()
	if counters.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2 (rate-limited attempt not double counted)", counters.Fetched)
	}
	if counters.Saved != 2 {
		t.Errorf("Saved = %d, want 2", counters.Saved)
	}
}

func TestCoordinator_Cancel(t *testing.T) {
	release := make(chan struct{})
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		if id == 1 {
			return mediaMessage(1, "key-1", "File.1.mkv"), nil
		}
		// Block the in-flight fetch until the test has cancelled; the run
		// must still let it finish before stopping.
		<-release
		return nil, source.ErrDeleted
	})
	c, tdb := newTestCoordinator(t, src, nil)
	defer tdb.Close()

	run := confirmRun(t, c, 100, 0)

	// Wait for the second fetch to be in flight, then cancel.
	deadline := time.After(5 * time.Second)
	for src.attempts(2) == 0 {
		select {
		case <-deadline:
			t.Fatal("second fetch never started")
		case <-time.After(time.Millisecond):
		}
	}
	if err := c.Cancel(testChannel); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(release)
	run.Wait()

	if got := run.State(); got != backfill.StateCancelled {
		t.Errorf("State() = %q, want %q", got, backfill.StateCancelled)
	}

	counters := run.CountersSnapshot()
	if counters.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", counters.Fetched)
	}
	if counters.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1 (in-flight fetch completed)", counters.Deleted)
	}
	if src.attempts(3) != 0 {
		t.Errorf("message 3 fetched %d times after cancel, want 0", src.attempts(3))
	}
}

func TestCoordinator_Cancel_NoRun(t *testing.T) {
	c, tdb := newTestCoordinator(t, newFakeSource(nil), nil)
	defer tdb.Close()

	if err := c.Cancel(testChannel); !errors.Is(err, backfill.ErrNoRun) {
		t.Errorf("Cancel() error = %v, want ErrNoRun", err)
	}
}

func TestCoordinator_SecondRunRejectedWhileActive(t *testing.T) {
	release := make(chan struct{})
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		<-release
		return nil, source.ErrDeleted
	})
	c, tdb := newTestCoordinator(t, src, nil)
	defer tdb.Close()

	run := confirmRun(t, c, 100, 0)

	if !c.InProgress(testChannel) {
		t.Error("InProgress() = false during active run, want true")
	}

	proposal, err := c.Propose(testChannel, 200)
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if _, err := c.Confirm(proposal.ID, 0); !errors.Is(err, backfill.ErrRunInProgress) {
		t.Errorf("Confirm() during active run error = %v, want ErrRunInProgress", err)
	}

	if err := c.Cancel(testChannel); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(release)
	run.Wait()

	if c.InProgress(testChannel) {
		t.Error("InProgress() = true after terminal run, want false")
	}
}

func TestCoordinator_Status(t *testing.T) {
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		return mediaMessage(id, fmt.Sprintf("key-%d", id), fmt.Sprintf("File.%d.mkv", id)), nil
	})
	c, tdb := newTestCoordinator(t, src, nil)
	defer tdb.Close()

	if _, err := c.Status(testChannel); !errors.Is(err, backfill.ErrNoRun) {
		t.Errorf("Status() with no run error = %v, want ErrNoRun", err)
	}

	run := confirmRun(t, c, 4, 0)
	run.Wait()

	snap, err := c.Status(testChannel)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snap.State != backfill.StateCompleted {
		t.Errorf("snapshot State = %q, want %q", snap.State, backfill.StateCompleted)
	}
	if snap.Percent != 100 {
		t.Errorf("snapshot Percent = %v, want 100", snap.Percent)
	}
	if snap.Counters.Fetched != 4 {
		t.Errorf("snapshot Fetched = %d, want 4", snap.Counters.Fetched)
	}
}

func TestCoordinator_ProgressReports(t *testing.T) {
	src := newFakeSource(func(id int64, attempt int) (*source.MessageDescriptor, error) {
		return mediaMessage(id, fmt.Sprintf("key-%d", id), fmt.Sprintf("File.%d.mkv", id)), nil
	})
	reporter := &recordingReporter{}
	c, tdb := newTestCoordinator(t, src, reporter)
	defer tdb.Close()

	// ProgressInterval is 2: six fetches produce three progress reports.
	run := confirmRun(t, c, 6, 0)
	run.Wait()

	reporter.mu.Lock()
	progress := reporter.progress
	reporter.mu.Unlock()
	if progress != 3 {
		t.Errorf("progress deliveries = %d, want 3", progress)
	}
}
