// Package classifier shells out to the acoustic analysis script and turns its
// output into a risk verdict.
//
// The script contract is narrow on purpose: it is invoked as
//
//	<python> <script> <audio path> <work dir>
//
// and must print a single JSON object on its final stdout line, either
// {"risk_level": ..., "confidence": ...} on success or {"error": ...} when
// analysis fails. Everything else the script prints is treated as progress
// chatter and ignored.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"pipewatch/internal/config"
	"pipewatch/internal/logging"
	"pipewatch/internal/store"
)

// ErrAnalysisFailed is returned when the script reports a failure or produces
// output the service cannot interpret.
var ErrAnalysisFailed = errors.New("analysis failed")

// CommandRunner executes a classifier invocation and returns captured stdout.
// A replacement runner lets tests exercise the parsing and mapping logic
// without a Python interpreter.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Result is a terminal classification verdict.
type Result struct {
	Level      store.RiskLevel
	Confidence float64
}

// Service runs the external classifier against staged audio files.
type Service struct {
	python  string
	script  string
	workDir string
	timeout time.Duration
	runner  CommandRunner
	logger  *slog.Logger
}

// NewService builds a classifier service from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		python:  cfg.Classifier.Python,
		script:  cfg.Classifier.Script,
		workDir: cfg.Classifier.WorkDir,
		timeout: cfg.ClassifierTimeout(),
		runner:  runCommand,
		logger:  logging.NewComponentLogger(logger, "classifier"),
	}
}

// WithRunner swaps the command runner. Tests use this to stub the subprocess.
func (s *Service) WithRunner(runner CommandRunner) *Service {
	s.runner = runner
	return s
}

// Classify analyzes one audio file and returns its verdict. The subprocess is
// killed when the configured timeout elapses.
func (s *Service) Classify(ctx context.Context, audioPath string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	stdout, err := s.runner(ctx, s.python, s.script, audioPath, s.workDir)
	elapsed := time.Since(started)

	if ctx.Err() != nil {
		s.logger.Warn("classifier timed out",
			logging.String("audio_path", audioPath),
			logging.Duration("elapsed", elapsed))
		return Result{}, fmt.Errorf("%w: timed out after %s", ErrAnalysisFailed, s.timeout)
	}

	verdict, parseErr := parseVerdict(stdout)
	if parseErr != nil {
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s", ErrAnalysisFailed, err)
		}
		return Result{}, fmt.Errorf("%w: %s", ErrAnalysisFailed, parseErr)
	}

	s.logger.Info("classification complete",
		logging.String("audio_path", audioPath),
		logging.String("risk_level", string(verdict.Level)),
		logging.Float64("confidence", verdict.Confidence),
		logging.Duration("elapsed", elapsed))
	return verdict, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%s: %s", err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

type scriptOutput struct {
	RiskLevel  string   `json:"risk_level"`
	Confidence *float64 `json:"confidence"`
	Error      string   `json:"error"`
}

// parseVerdict extracts the verdict from the final non-empty stdout line.
func parseVerdict(stdout []byte) (Result, error) {
	line := lastNonEmptyLine(stdout)
	if line == "" {
		return Result{}, errors.New("script produced no output")
	}

	var out scriptOutput
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		return Result{}, fmt.Errorf("unparseable script output %q", line)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("script error: %s", out.Error)
	}

	level, ok := mapRiskLabel(out.RiskLevel)
	if !ok {
		return Result{}, fmt.Errorf("unknown risk label %q", out.RiskLevel)
	}

	confidence := 0.0
	if out.Confidence != nil {
		confidence = *out.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return Result{}, fmt.Errorf("confidence %v out of range", confidence)
	}
	return Result{Level: level, Confidence: confidence}, nil
}

// mapRiskLabel normalizes the labels the analysis models emit, including the
// Chinese labels produced by the original training pipeline.
func mapRiskLabel(label string) (store.RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high", "高风险":
		return store.RiskHigh, true
	case "medium", "中风险":
		return store.RiskMedium, true
	case "low", "低风险", "无风险":
		return store.RiskLow, true
	default:
		return "", false
	}
}

func lastNonEmptyLine(output []byte) string {
	lines := strings.Split(string(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
