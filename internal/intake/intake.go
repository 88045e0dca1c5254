// Package intake receives uploaded audio payloads, stages them on disk under
// generated collision-free names, and records their metadata rows.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pipewatch/internal/config"
	"pipewatch/internal/logging"
	"pipewatch/internal/store"
)

var (
	// ErrUnsupportedMedia is returned when the declared content type is not audio.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrPayloadTooLarge is returned when an upload exceeds the size ceiling.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Service stages uploads and persists their metadata.
type Service struct {
	store      *store.Store
	contentDir string
	maxBytes   int64
	logger     *slog.Logger
}

// NewService constructs an intake service bound to the configured content
// directory and size ceiling.
func NewService(cfg *config.Config, st *store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		contentDir: cfg.Paths.ContentDir,
		maxBytes:   cfg.MaxUploadBytes(),
		logger:     logging.NewComponentLogger(logger, "intake"),
	}
}

// Upload describes an incoming payload.
type Upload struct {
	Reader       io.Reader
	OriginalName string
	MimeType     string
	DeclaredSize int64
	OwnerID      *int64
}

// Accept validates an upload, writes it durably to the content directory, and
// inserts its metadata row. On any failure after the file lands on disk the
// staged file is removed so no orphan survives a failed intake.
func (s *Service) Accept(ctx context.Context, upload Upload) (*store.AudioFile, error) {
	if !strings.HasPrefix(strings.ToLower(upload.MimeType), "audio/") {
		return nil, ErrUnsupportedMedia
	}
	if upload.DeclaredSize > s.maxBytes {
		return nil, ErrPayloadTooLarge
	}

	storedName := s.generateName(upload.OriginalName)
	path := filepath.Join(s.contentDir, storedName)

	written, err := s.writeFile(path, upload.Reader)
	if err != nil {
		return nil, err
	}

	record, err := s.store.CreateAudioFile(ctx, store.NewAudioFileParams{
		StoredName:   storedName,
		OriginalName: upload.OriginalName,
		MimeType:     upload.MimeType,
		Size:         written,
		OwnerID:      upload.OwnerID,
	})
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			s.logger.Warn("failed to remove staged upload after insert failure",
				logging.String(logging.FieldStoredName, storedName),
				logging.Error(removeErr))
		}
		return nil, fmt.Errorf("record upload: %w", err)
	}

	s.logger.Info("upload accepted",
		logging.Int64(logging.FieldFileID, record.ID),
		logging.String(logging.FieldStoredName, storedName),
		logging.Int64("size", written))
	return record, nil
}

// Path resolves the on-disk location of a stored upload.
func (s *Service) Path(storedName string) string {
	return filepath.Join(s.contentDir, storedName)
}

// RemoveFile deletes the staged payload for a stored name. A missing file is
// not an error; the metadata row is authoritative.
func (s *Service) RemoveFile(storedName string) error {
	err := os.Remove(filepath.Join(s.contentDir, storedName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

func (s *Service) writeFile(path string, reader io.Reader) (int64, error) {
	if err := os.MkdirAll(s.contentDir, 0o755); err != nil {
		return 0, fmt.Errorf("create content directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	// Copy one byte past the ceiling so oversized payloads are detected even
	// when the declared size lied.
	written, err := io.Copy(file, io.LimitReader(reader, s.maxBytes+1))
	if err == nil && written > s.maxBytes {
		err = ErrPayloadTooLarge
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close upload file: %w", closeErr)
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrPayloadTooLarge) {
			return 0, ErrPayloadTooLarge
		}
		return 0, fmt.Errorf("write upload: %w", err)
	}
	return written, nil
}

// generateName derives a unique storage name that keeps the original
// extension and sorts roughly by arrival time.
func (s *Service) generateName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	stamp := time.Now().UTC().Format("20060102T150405")
	fragment := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s%s", stamp, fragment, ext)
}
