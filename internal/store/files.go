package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const audioFileColumns = "id, stored_name, original_name, mime_type, size, owner_id, risk_level, confidence, uploaded_at"

// NewAudioFileParams describes an intake row to insert.
type NewAudioFileParams struct {
	StoredName   string
	OriginalName string
	MimeType     string
	Size         int64
	OwnerID      *int64
}

// CreateAudioFile inserts an unclassified metadata row for a stored upload and
// returns it with its generated id.
func (s *Store) CreateAudioFile(ctx context.Context, params NewAudioFileParams) (*AudioFile, error) {
	ctx = ensureContext(ctx)
	if params.StoredName == "" {
		return nil, errors.New("stored name is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO audio_files (
            stored_name, original_name, mime_type, size, owner_id,
            risk_level, confidence, uploaded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		params.StoredName,
		params.OriginalName,
		params.MimeType,
		params.Size,
		params.OwnerID,
		RiskUnclassified,
		0.0,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audio file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetAudioFileByID(ctx, id)
}

// GetAudioFileByID fetches an audio file by identifier.
func (s *Store) GetAudioFileByID(ctx context.Context, id int64) (*AudioFile, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+audioFileColumns+` FROM audio_files WHERE id = ?`,
		id,
	)
	return scanAudioFile(row)
}

// GetAudioFileByStoredName fetches an audio file by its generated storage name.
func (s *Store) GetAudioFileByStoredName(ctx context.Context, storedName string) (*AudioFile, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+audioFileColumns+` FROM audio_files WHERE stored_name = ?`,
		storedName,
	)
	return scanAudioFile(row)
}

// ListAudioFiles returns one page of audio files, newest first, plus the total
// row count for pagination.
func (s *Store) ListAudioFiles(ctx context.Context, page, size int) ([]*AudioFile, int, error) {
	ctx = ensureContext(ctx)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM audio_files`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audio files: %w", err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+audioFileColumns+` FROM audio_files ORDER BY uploaded_at DESC, id DESC LIMIT ? OFFSET ?`,
		size, (page-1)*size,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list audio files: %w", err)
	}
	defer rows.Close()

	var files []*AudioFile
	for rows.Next() {
		file, err := scanAudioFile(rows)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, file)
	}
	return files, total, rows.Err()
}

// ListUnclassifiedAudioFiles returns every row still awaiting a verdict,
// oldest first, so interrupted work can be resumed in arrival order.
func (s *Store) ListUnclassifiedAudioFiles(ctx context.Context) ([]*AudioFile, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+audioFileColumns+` FROM audio_files WHERE risk_level = ? ORDER BY uploaded_at ASC, id ASC`,
		RiskUnclassified,
	)
	if err != nil {
		return nil, fmt.Errorf("list unclassified audio files: %w", err)
	}
	defer rows.Close()

	var files []*AudioFile
	for rows.Next() {
		file, err := scanAudioFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// SetClassification records the terminal classification result for a row. The
// update is keyed by row id and guarded so a result lands at most once; a
// second write returns ErrAlreadyClassified.
func (s *Store) SetClassification(ctx context.Context, id int64, level RiskLevel, confidence float64) error {
	if !level.IsTerminal() {
		return fmt.Errorf("risk level %q is not terminal", level)
	}
	res, err := s.execWithRetry(
		ensureContext(ctx),
		`UPDATE audio_files SET risk_level = ?, confidence = ? WHERE id = ? AND risk_level = ?`,
		level, confidence, id, RiskUnclassified,
	)
	if err != nil {
		return fmt.Errorf("set classification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetAudioFileByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if existing.RiskLevel != RiskUnclassified {
			return ErrAlreadyClassified
		}
		return ErrNotFound
	}
	return nil
}

// DeleteAudioFile removes a row by identifier and returns the removed record
// so the caller can delete the backing file.
func (s *Store) DeleteAudioFile(ctx context.Context, id int64) (*AudioFile, error) {
	ctx = ensureContext(ctx)
	file, err := s.GetAudioFileByID(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.execWithRetry(ctx, `DELETE FROM audio_files WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("delete audio file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return file, nil
}

func scanAudioFile(scanner interface{ Scan(dest ...any) error }) (*AudioFile, error) {
	var (
		id          int64
		storedName  string
		origName    string
		mimeType    string
		size        int64
		ownerID     sql.NullInt64
		riskStr     string
		confidence  float64
		uploadedRaw string
	)
	if err := scanner.Scan(&id, &storedName, &origName, &mimeType, &size, &ownerID, &riskStr, &confidence, &uploadedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan audio file: %w", err)
	}

	riskLevel, ok := ParseRiskLevel(riskStr)
	if !ok {
		return nil, fmt.Errorf("audio file %d has unknown risk level %q", id, riskStr)
	}

	file := &AudioFile{
		ID:           id,
		StoredName:   storedName,
		OriginalName: origName,
		MimeType:     mimeType,
		Size:         size,
		RiskLevel:    riskLevel,
		Confidence:   confidence,
	}
	if ownerID.Valid {
		owner := ownerID.Int64
		file.OwnerID = &owner
	}
	if uploaded, err := parseTimeString(uploadedRaw); err == nil {
		file.UploadedAt = uploaded
	}
	return file, nil
}
