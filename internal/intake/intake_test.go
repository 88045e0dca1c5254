package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pipewatch/internal/logging"
	"pipewatch/internal/testsupport"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxUploadMiB(1))
	st := testsupport.MustOpenStore(t, cfg)
	return NewService(cfg, st, logging.NewNop())
}

func TestAcceptStoresFileAndMetadata(t *testing.T) {
	svc := newTestService(t)
	payload := "RIFF....WAVEfmt "

	record, err := svc.Accept(context.Background(), Upload{
		Reader:       strings.NewReader(payload),
		OriginalName: "Leak Survey 12.WAV",
		MimeType:     "audio/wav",
		DeclaredSize: int64(len(payload)),
	})
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if record.OriginalName != "Leak Survey 12.WAV" {
		t.Errorf("original name = %q", record.OriginalName)
	}
	if record.StoredName == record.OriginalName {
		t.Error("stored name must not reuse the original name")
	}
	if !strings.HasSuffix(record.StoredName, ".wav") {
		t.Errorf("stored name %q should keep a lowercased extension", record.StoredName)
	}
	if record.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", record.Size, len(payload))
	}

	data, err := os.ReadFile(svc.Path(record.StoredName))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != payload {
		t.Errorf("stored bytes differ from payload")
	}
}

func TestAcceptRejectsNonAudio(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Accept(context.Background(), Upload{
		Reader:       strings.NewReader("%PDF-1.4"),
		OriginalName: "report.pdf",
		MimeType:     "application/pdf",
		DeclaredSize: 8,
	})
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Fatalf("err = %v, want ErrUnsupportedMedia", err)
	}
}

func TestAcceptRejectsDeclaredOversize(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Accept(context.Background(), Upload{
		Reader:       strings.NewReader("tiny"),
		OriginalName: "big.wav",
		MimeType:     "audio/wav",
		DeclaredSize: 2 << 20,
	})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestAcceptRejectsUnderdeclaredOversize(t *testing.T) {
	svc := newTestService(t)

	// Declares one byte but streams past the 1 MiB ceiling.
	oversized := strings.NewReader(strings.Repeat("x", (1<<20)+1))
	_, err := svc.Accept(context.Background(), Upload{
		Reader:       oversized,
		OriginalName: "liar.wav",
		MimeType:     "audio/wav",
		DeclaredSize: 1,
	})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}

	entries, err := os.ReadDir(filepath.Dir(svc.Path("any")))
	if err != nil {
		t.Fatalf("read content dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d files behind", len(entries))
	}
}

func TestAcceptGeneratesUniqueNames(t *testing.T) {
	svc := newTestService(t)
	seen := map[string]bool{}

	for i := 0; i < 5; i++ {
		record, err := svc.Accept(context.Background(), Upload{
			Reader:       strings.NewReader("data"),
			OriginalName: "same.mp3",
			MimeType:     "audio/mpeg",
			DeclaredSize: 4,
		})
		if err != nil {
			t.Fatalf("Accept #%d: %v", i, err)
		}
		if seen[record.StoredName] {
			t.Fatalf("stored name %q repeated", record.StoredName)
		}
		seen[record.StoredName] = true
	}
}

func TestRemoveFileIgnoresMissing(t *testing.T) {
	svc := newTestService(t)
	if err := svc.RemoveFile("never-existed.wav"); err != nil {
		t.Fatalf("RemoveFile missing: %v", err)
	}
}
