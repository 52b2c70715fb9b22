package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"comic2kindle/internal/assembly"
	"comic2kindle/internal/imaging"
	"comic2kindle/internal/jobs"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/pages"
	"comic2kindle/internal/sessions"
	"comic2kindle/internal/testsupport"
)

func newTestCoordinator(t *testing.T, opts ...testsupport.ConfigOption) (*Coordinator, *jobs.Store, *sessions.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	sessionStore, err := sessions.NewStore(cfg)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	coordinator := NewCoordinator(cfg, store, sessionStore, nil, nil, logging.NewNop())
	return coordinator, store, sessionStore
}

func uploadCBZ(t *testing.T, sessionStore *sessions.Store, sessionID string, pageCount int) string {
	t.Helper()
	entries := make(map[string][]byte, pageCount)
	for i := 0; i < pageCount; i++ {
		entries[fmt.Sprintf("page%03d.jpg", i+1)] = testsupport.JPEGPage(t, 300, 400)
	}
	archive := filepath.Join(t.TempDir(), "source.cbz")
	testsupport.WriteCBZ(t, archive, entries)

	data, err := os.ReadFile(archive)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	file, err := sessionStore.SaveFile(sessionID, "source.cbz", data)
	if err != nil {
		t.Fatalf("save file: %v", err)
	}
	return file.ID
}

func waitForTerminal(t *testing.T, coordinator *Coordinator, store *jobs.Store, jobID string) *jobs.Job {
	t.Helper()
	coordinator.Wait()
	job, err := store.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s disappeared", jobID)
	}
	if !job.Status.IsTerminal() {
		t.Fatalf("job still %s after coordinator drained", job.Status)
	}
	return job
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	coordinator, store, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	fileID := uploadCBZ(t, sessionStore, sessionID, 4)

	opts := imaging.DefaultTransformOptions()
	opts.Direction = pages.DirectionLeftToRight
	job, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{fileID},
		Options:   &opts,
		Metadata:  &assembly.Metadata{Title: "Test Book", Series: "Test"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Status != jobs.StatusPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if done.Progress != 100 {
		t.Fatalf("completed job must report progress 100, got %v", done.Progress)
	}
	if done.CurrentFile != "" {
		t.Fatalf("terminal job must clear current file, got %q", done.CurrentFile)
	}
	if len(done.OutputFiles) != 1 {
		t.Fatalf("expected one output volume, got %v", done.OutputFiles)
	}
	if !strings.HasSuffix(done.OutputFiles[0], ".epub") {
		t.Fatalf("expected epub output, got %s", done.OutputFiles[0])
	}
	if _, err := os.Stat(done.OutputFiles[0]); err != nil {
		t.Fatalf("output %s missing on disk: %v", done.OutputFiles[0], err)
	}
}

func TestSubmitMergesMultipleFiles(t *testing.T) {
	coordinator, store, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first := uploadCBZ(t, sessionStore, sessionID, 3)
	second := uploadCBZ(t, sessionStore, sessionID, 3)

	job, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{first, second},
		Merge:     true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if len(done.OutputFiles) != 1 {
		t.Fatalf("merge should produce a single volume, got %v", done.OutputFiles)
	}
}

func TestNeedsSplitPhaseOnlyOnMergeJobs(t *testing.T) {
	tests := []struct {
		merge   bool
		volumes int
		want    bool
	}{
		{true, 2, true},
		{true, 1, false},
		{false, 2, false},
		{false, 1, false},
	}
	for _, tc := range tests {
		if got := needsSplitPhase(tc.merge, tc.volumes); got != tc.want {
			t.Errorf("needsSplitPhase(%v, %d) = %v, want %v", tc.merge, tc.volumes, got, tc.want)
		}
	}
}

func TestNonMergeBatchProducesOneVolumePerFile(t *testing.T) {
	coordinator, store, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first := uploadCBZ(t, sessionStore, sessionID, 2)
	second := uploadCBZ(t, sessionStore, sessionID, 2)

	job, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{first, second},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if len(done.OutputFiles) != 2 {
		t.Fatalf("expected one volume per file, got %v", done.OutputFiles)
	}
}

func TestSubmitRejectsUnknownSession(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)
	_, err := coordinator.Submit(context.Background(), Request{
		SessionID: "missing",
		FileIDs:   []string{"whatever"},
	})
	if err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestSubmitRejectsTinyBudget(t *testing.T) {
	coordinator, _, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	fileID := uploadCBZ(t, sessionStore, sessionID, 1)

	if _, err := coordinator.Submit(ctx, Request{
		SessionID:   sessionID,
		FileIDs:     []string{fileID},
		MaxVolumeMB: -5,
	}); err == nil {
		t.Fatal("expected error for budget below the minimum")
	}
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	coordinator, _, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{"does-not-exist"},
	}); err == nil {
		t.Fatal("expected error for missing file id")
	}
}

func TestJobFailsOnCorruptArchive(t *testing.T) {
	coordinator, store, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	file, err := sessionStore.SaveFile(sessionID, "broken.cbz", []byte("not a zip"))
	if err != nil {
		t.Fatalf("save file: %v", err)
	}

	job, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{file.ID},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status != jobs.StatusFailed {
		t.Fatalf("expected failed job, got %s", done.Status)
	}
	if done.ErrorMessage == "" || done.ErrorKind == jobs.ErrorKindNone {
		t.Fatalf("failed job must carry error details, got %q / %q", done.ErrorMessage, done.ErrorKind)
	}
}

type failingConverter struct{}

func (failingConverter) Convert(context.Context, string, string) error {
	return errors.New("ebook-convert exploded")
}

func TestLegacyConversionFailureDowngradesToWarning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sessionStore, err := sessions.NewStore(cfg)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	coordinator := NewCoordinator(cfg, store, sessionStore, failingConverter{}, nil, logging.NewNop())
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	fileID := uploadCBZ(t, sessionStore, sessionID, 2)

	job, err := coordinator.Submit(ctx, Request{
		SessionID:    sessionID,
		FileIDs:      []string{fileID},
		OutputFormat: "both",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("legacy failure must not fail the job, got %s (%s)", done.Status, done.ErrorMessage)
	}
	if len(done.Warnings) == 0 {
		t.Fatal("expected a warning recording the MOBI failure")
	}
	found := false
	for _, warning := range done.Warnings {
		if strings.Contains(warning, "MOBI conversion failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings missing MOBI failure, got %v", done.Warnings)
	}
	if len(done.OutputFiles) != 1 || !strings.HasSuffix(done.OutputFiles[0], ".epub") {
		t.Fatalf("expected lone epub output, got %v", done.OutputFiles)
	}
}

func TestCancelStopsSessionJobs(t *testing.T) {
	coordinator, store, sessionStore := newTestCoordinator(t)
	ctx := context.Background()

	sessionID, err := sessionStore.Create(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	fileID := uploadCBZ(t, sessionStore, sessionID, 30)

	job, err := coordinator.Submit(ctx, Request{
		SessionID: sessionID,
		FileIDs:   []string{fileID},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Cancel quickly; the job either aborts mid-flight or completes before
	// the signal lands. Both end terminal.
	time.Sleep(10 * time.Millisecond)
	coordinator.Cancel(sessionID)

	done := waitForTerminal(t, coordinator, store, job.ID)
	if done.Status == jobs.StatusFailed && done.ErrorMessage != "conversion canceled" {
		t.Fatalf("canceled job should record cancellation, got %q", done.ErrorMessage)
	}
}
