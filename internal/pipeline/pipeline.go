// Package pipeline drives uploaded audio files from intake to a recorded
// verdict. Each upload is classified on its own goroutine; progress is
// published on an in-memory status board that the API polls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pipewatch/internal/classifier"
	"pipewatch/internal/logging"
	"pipewatch/internal/store"
)

// Classifier is the verdict producer the pipeline drives. Satisfied by
// *classifier.Service.
type Classifier interface {
	Classify(ctx context.Context, audioPath string) (classifier.Result, error)
}

// PathResolver maps a stored name to its on-disk location. Satisfied by
// *intake.Service.
type PathResolver interface {
	Path(storedName string) string
}

// Pipeline fans uploaded files out to the classifier and records results.
type Pipeline struct {
	store      *store.Store
	classifier Classifier
	paths      PathResolver
	board      *board
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New constructs a pipeline. Work submitted after Stop is rejected.
func New(st *store.Store, cls Classifier, paths PathResolver, logger *slog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:      st,
		classifier: cls,
		paths:      paths,
		board:      newBoard(),
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Enqueue schedules classification for an accepted upload. The upload is
// marked pending immediately; the classification itself runs on a dedicated
// goroutine so intake never waits on analysis.
func (p *Pipeline) Enqueue(file *store.AudioFile) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return errors.New("pipeline is stopped")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.board.set(file.StoredName, Status{State: StatePending})
	go func() {
		defer p.wg.Done()
		p.process(file)
	}()
	return nil
}

// Resume re-enqueues every row still awaiting a verdict. Called once at
// daemon startup so uploads interrupted by a restart are not stranded.
func (p *Pipeline) Resume(ctx context.Context) error {
	pending, err := p.store.ListUnclassifiedAudioFiles(ctx)
	if err != nil {
		return fmt.Errorf("resume pending work: %w", err)
	}
	for _, file := range pending {
		if err := p.Enqueue(file); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		p.logger.Info("resumed interrupted classifications", logging.Int("count", len(pending)))
	}
	return nil
}

// Status reports the live state of an upload by stored name. For names the
// board no longer tracks the database row is consulted, so terminal outcomes
// survive a daemon restart.
func (p *Pipeline) Status(ctx context.Context, storedName string) Status {
	status := p.board.lookup(storedName)
	if status.State != StateUnknown {
		return status
	}

	file, err := p.store.GetAudioFileByStoredName(ctx, storedName)
	if err != nil {
		return Status{State: StateUnknown}
	}
	switch file.RiskLevel {
	case store.RiskUnclassified:
		return Status{State: StatePending}
	case store.RiskError:
		return Status{State: StateError, Message: "classification failed"}
	default:
		return Status{
			State:      StateCompleted,
			RiskLevel:  file.RiskLevel,
			Confidence: file.Confidence,
		}
	}
}

// Forget drops the board entry for a deleted upload.
func (p *Pipeline) Forget(storedName string) {
	p.board.forget(storedName)
}

// Stop rejects further work and drains in-flight classifications. Running
// subprocesses are cancelled only once ctx expires; a cancelled run keeps its
// row unclassified so Resume picks it up on the next start.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("pipeline drain: %w", ctx.Err())
	}
}

func (p *Pipeline) process(file *store.AudioFile) {
	p.board.set(file.StoredName, Status{State: StateProcessing, Message: "analyzing audio"})

	result, err := p.classifier.Classify(p.ctx, p.paths.Path(file.StoredName))
	if err != nil {
		p.recordFailure(file, err)
		return
	}

	if err := p.store.SetClassification(p.ctx, file.ID, result.Level, result.Confidence); err != nil {
		if errors.Is(err, store.ErrAlreadyClassified) {
			p.logger.Warn("verdict already recorded",
				logging.Int64(logging.FieldFileID, file.ID),
				logging.String(logging.FieldStoredName, file.StoredName))
			p.board.forget(file.StoredName)
			return
		}
		p.recordFailure(file, err)
		return
	}

	p.board.set(file.StoredName, Status{
		State:      StateCompleted,
		RiskLevel:  result.Level,
		Confidence: result.Confidence,
	})
	p.logger.Info("upload classified",
		logging.Int64(logging.FieldFileID, file.ID),
		logging.String(logging.FieldStoredName, file.StoredName),
		logging.String("risk_level", string(result.Level)))
}

func (p *Pipeline) recordFailure(file *store.AudioFile, cause error) {
	if p.ctx.Err() != nil {
		// Shutdown cancellation, not a verdict. The row stays unclassified
		// so Resume re-enqueues it on the next start.
		p.logger.Warn("classification interrupted by shutdown",
			logging.Int64(logging.FieldFileID, file.ID),
			logging.String(logging.FieldStoredName, file.StoredName))
		p.board.set(file.StoredName, Status{State: StatePending})
		return
	}

	p.logger.Error("classification failed",
		logging.Int64(logging.FieldFileID, file.ID),
		logging.String(logging.FieldStoredName, file.StoredName),
		logging.Error(cause))

	if err := p.store.SetClassification(context.Background(), file.ID, store.RiskError, 0); err != nil &&
		!errors.Is(err, store.ErrAlreadyClassified) && !errors.Is(err, store.ErrNotFound) {
		p.logger.Error("failed to record error state",
			logging.Int64(logging.FieldFileID, file.ID),
			logging.Error(err))
	}
	p.board.set(file.StoredName, Status{State: StateError, Message: cause.Error()})
}
