package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pipewatch/internal/logging"
	"pipewatch/internal/store"
	"pipewatch/internal/testsupport"
)

func newTestService(t *testing.T, runner CommandRunner) *Service {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return NewService(cfg, logging.NewNop()).WithRunner(runner)
}

func staticOutput(output string) CommandRunner {
	return func(context.Context, string, ...string) ([]byte, error) {
		return []byte(output), nil
	}
}

func TestClassifyParsesVerdict(t *testing.T) {
	svc := newTestService(t, staticOutput(
		"loading model weights\nanalyzing spectrum\n{\"risk_level\": \"high\", \"confidence\": 0.93}\n",
	))

	result, err := svc.Classify(context.Background(), "/tmp/sample.wav")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Level != store.RiskHigh {
		t.Errorf("level = %q, want high", result.Level)
	}
	if result.Confidence != 0.93 {
		t.Errorf("confidence = %v, want 0.93", result.Confidence)
	}
}

func TestClassifyMapsLabels(t *testing.T) {
	cases := []struct {
		label string
		want  store.RiskLevel
	}{
		{"high", store.RiskHigh},
		{"HIGH", store.RiskHigh},
		{"高风险", store.RiskHigh},
		{"medium", store.RiskMedium},
		{"中风险", store.RiskMedium},
		{"low", store.RiskLow},
		{"低风险", store.RiskLow},
		{"无风险", store.RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			svc := newTestService(t, staticOutput(
				fmt.Sprintf("{\"risk_level\": %q, \"confidence\": 0.5}", tc.label),
			))
			result, err := svc.Classify(context.Background(), "x.wav")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if result.Level != tc.want {
				t.Errorf("level = %q, want %q", result.Level, tc.want)
			}
		})
	}
}

func TestClassifyUnknownLabelFails(t *testing.T) {
	svc := newTestService(t, staticOutput(`{"risk_level": "catastrophic", "confidence": 0.9}`))
	if _, err := svc.Classify(context.Background(), "x.wav"); !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
}

func TestClassifyScriptError(t *testing.T) {
	svc := newTestService(t, staticOutput(`{"error": "model checkpoint missing"}`))
	_, err := svc.Classify(context.Background(), "x.wav")
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
}

func TestClassifyGarbageOutput(t *testing.T) {
	for _, output := range []string{"", "Traceback (most recent call last):", "{not json"} {
		svc := newTestService(t, staticOutput(output))
		if _, err := svc.Classify(context.Background(), "x.wav"); !errors.Is(err, ErrAnalysisFailed) {
			t.Fatalf("output %q: err = %v, want ErrAnalysisFailed", output, err)
		}
	}
}

func TestClassifyConfidenceOutOfRange(t *testing.T) {
	svc := newTestService(t, staticOutput(`{"risk_level": "low", "confidence": 1.5}`))
	if _, err := svc.Classify(context.Background(), "x.wav"); !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
}

func TestClassifyTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierTimeout(1))
	svc := NewService(cfg, logging.NewNop()).WithRunner(
		func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)
	svc.timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := svc.Classify(context.Background(), "slow.wav")
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %s, expected prompt cancellation", elapsed)
	}
}

func TestClassifyRunnerFailureWithoutVerdict(t *testing.T) {
	svc := newTestService(t, func(context.Context, string, ...string) ([]byte, error) {
		return []byte("partial output"), errors.New("exit status 1")
	})
	if _, err := svc.Classify(context.Background(), "x.wav"); !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
}

func TestClassifyPassesScriptArguments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.Python = "python3"
	cfg.Classifier.WorkDir = "/var/lib/pipewatch/work"

	var gotName string
	var gotArgs []string
	svc := NewService(cfg, logging.NewNop()).WithRunner(
		func(_ context.Context, name string, args ...string) ([]byte, error) {
			gotName = name
			gotArgs = args
			return []byte(`{"risk_level": "low", "confidence": 0.1}`), nil
		},
	)

	if _, err := svc.Classify(context.Background(), "/uploads/a.wav"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gotName != "python3" {
		t.Errorf("command = %q, want python3", gotName)
	}
	want := []string{cfg.Classifier.Script, "/uploads/a.wav", "/var/lib/pipewatch/work"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg[%d] = %q, want %q", i, gotArgs[i], want[i])
		}
	}
}
