package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pipewatch/internal/classifier"
	"pipewatch/internal/logging"
	"pipewatch/internal/store"
	"pipewatch/internal/testsupport"
)

type stubClassifier struct {
	mu      sync.Mutex
	calls   int
	result  classifier.Result
	err     error
	release chan struct{}
}

func (s *stubClassifier) Classify(ctx context.Context, audioPath string) (classifier.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return classifier.Result{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubPaths struct{ dir string }

func (s stubPaths) Path(storedName string) string { return filepath.Join(s.dir, storedName) }

func newTestPipeline(t *testing.T, cls Classifier) (*Pipeline, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	p := New(st, cls, stubPaths{dir: cfg.Paths.ContentDir}, logging.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	return p, st
}

func waitForState(t *testing.T, p *Pipeline, storedName string, want State) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		status := p.Status(context.Background(), storedName)
		if status.State == want {
			return status
		}
		select {
		case <-deadline:
			t.Fatalf("status for %q stuck at %q, want %q", storedName, status.State, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEnqueueRecordsVerdict(t *testing.T) {
	cls := &stubClassifier{result: classifier.Result{Level: store.RiskHigh, Confidence: 0.88}}
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "survey-1.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForState(t, p, file.StoredName, StateCompleted)
	if status.RiskLevel != store.RiskHigh || status.Confidence != 0.88 {
		t.Errorf("status = %+v, want high/0.88", status)
	}

	updated, err := st.GetAudioFileByID(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("GetAudioFileByID: %v", err)
	}
	if updated.RiskLevel != store.RiskHigh {
		t.Errorf("persisted level = %q, want high", updated.RiskLevel)
	}
}

func TestClassifierFailureMarksError(t *testing.T) {
	cls := &stubClassifier{err: errors.New("model import failed")}
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "broken.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	status := waitForState(t, p, file.StoredName, StateError)
	if status.Message == "" {
		t.Error("error status should carry a message")
	}

	updated, err := st.GetAudioFileByID(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("GetAudioFileByID: %v", err)
	}
	if updated.RiskLevel != store.RiskError {
		t.Errorf("persisted level = %q, want error", updated.RiskLevel)
	}
}

func TestStatusFallsBackToDatabase(t *testing.T) {
	cls := &stubClassifier{}
	p, st := newTestPipeline(t, cls)

	file := testsupport.NewAudioFile(t, st, "restored.wav", nil)
	if err := st.SetClassification(context.Background(), file.ID, store.RiskLow, 0.42); err != nil {
		t.Fatalf("SetClassification: %v", err)
	}

	// Never enqueued in this process, as after a restart.
	status := p.Status(context.Background(), file.StoredName)
	if status.State != StateCompleted {
		t.Fatalf("state = %q, want completed", status.State)
	}
	if status.RiskLevel != store.RiskLow || status.Confidence != 0.42 {
		t.Errorf("status = %+v, want low/0.42", status)
	}
}

func TestStatusUnknownForForeignName(t *testing.T) {
	p, _ := newTestPipeline(t, &stubClassifier{})
	if status := p.Status(context.Background(), "nobody.wav"); status.State != StateUnknown {
		t.Fatalf("state = %q, want unknown", status.State)
	}
}

func TestResumePicksUpPendingRows(t *testing.T) {
	cls := &stubClassifier{result: classifier.Result{Level: store.RiskLow, Confidence: 0.2}}
	p, st := newTestPipeline(t, cls)

	first := testsupport.NewAudioFile(t, st, "pending-1.wav", nil)
	second := testsupport.NewAudioFile(t, st, "pending-2.wav", nil)

	if err := p.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitForState(t, p, first.StoredName, StateCompleted)
	waitForState(t, p, second.StoredName, StateCompleted)

	if got := cls.callCount(); got != 2 {
		t.Errorf("classifier calls = %d, want 2", got)
	}
}

func TestStopRejectsNewWorkAndDrains(t *testing.T) {
	release := make(chan struct{})
	cls := &stubClassifier{
		result:  classifier.Result{Level: store.RiskLow, Confidence: 0.1},
		release: release,
	}
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "inflight.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, p, file.StoredName, StateProcessing)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := p.Enqueue(file); err == nil {
		t.Fatal("Enqueue after Stop should fail")
	}
}

func TestStopWaitsForInFlightVerdict(t *testing.T) {
	release := make(chan struct{})
	cls := &stubClassifier{
		result:  classifier.Result{Level: store.RiskMedium, Confidence: 0.5},
		release: release,
	}
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "draining.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, p, file.StoredName, StateProcessing)

	stopErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopErr <- p.Stop(ctx)
	}()

	// The classification is still running; Stop must wait for it rather
	// than cancel it.
	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop: %v", err)
	}

	updated, err := st.GetAudioFileByID(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("GetAudioFileByID: %v", err)
	}
	if updated.RiskLevel != store.RiskMedium {
		t.Errorf("persisted level = %q, want medium", updated.RiskLevel)
	}
}

func TestStopLeavesInterruptedRowUnclassified(t *testing.T) {
	cls := &stubClassifier{release: make(chan struct{})} // never released
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "interrupted.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, p, file.StoredName, StateProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err == nil {
		t.Fatal("Stop should report the expired drain deadline")
	}

	updated, err := st.GetAudioFileByID(context.Background(), file.ID)
	if err != nil {
		t.Fatalf("GetAudioFileByID: %v", err)
	}
	if updated.RiskLevel != store.RiskUnclassified {
		t.Errorf("persisted level = %q, want unclassified", updated.RiskLevel)
	}

	pending, err := st.ListUnclassifiedAudioFiles(context.Background())
	if err != nil {
		t.Fatalf("ListUnclassifiedAudioFiles: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != file.ID {
		t.Errorf("pending rows = %d, want the interrupted upload", len(pending))
	}
}

func TestForgetDropsBoardEntry(t *testing.T) {
	cls := &stubClassifier{result: classifier.Result{Level: store.RiskMedium, Confidence: 0.6}}
	p, st := newTestPipeline(t, cls)
	file := testsupport.NewAudioFile(t, st, "gone.wav", nil)

	if err := p.Enqueue(file); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitForState(t, p, file.StoredName, StateCompleted)

	if _, err := st.DeleteAudioFile(context.Background(), file.ID); err != nil {
		t.Fatalf("DeleteAudioFile: %v", err)
	}
	p.Forget(file.StoredName)

	if status := p.Status(context.Background(), file.StoredName); status.State != StateUnknown {
		t.Fatalf("state after delete = %q, want unknown", status.State)
	}
}
