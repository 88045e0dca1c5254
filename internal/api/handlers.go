package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pipewatch/internal/auth"
	"pipewatch/internal/intake"
	"pipewatch/internal/logging"
	"pipewatch/internal/pipeline"
	"pipewatch/internal/store"
)

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

func newUserResponse(user *store.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type audioFileResponse struct {
	ID           int64   `json:"id"`
	StoredName   string  `json:"storedName"`
	OriginalName string  `json:"originalName"`
	MimeType     string  `json:"mimeType"`
	Size         int64   `json:"size"`
	OwnerID      *int64  `json:"ownerId"`
	RiskLevel    string  `json:"riskLevel"`
	Confidence   float64 `json:"confidence"`
	UploadedAt   string  `json:"uploadedAt"`
	URL          string  `json:"url"`
}

func newAudioFileResponse(file *store.AudioFile) audioFileResponse {
	return audioFileResponse{
		ID:           file.ID,
		StoredName:   file.StoredName,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Size:         file.Size,
		OwnerID:      file.OwnerID,
		RiskLevel:    string(file.RiskLevel),
		Confidence:   file.Confidence,
		UploadedAt:   file.UploadedAt.UTC().Format(time.RFC3339),
		URL:          uploadsPrefix + file.StoredName,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleInitStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountUsers(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"initialized": count > 0})
}

func (s *Server) handleInitAdmin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if err := s.passwords.Validate(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	user, err := s.store.CreateBootstrapUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyInitialized) {
			writeError(w, http.StatusConflict, "system is already initialized")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"user": newUserResponse(user)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if err := s.passwords.Validate(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			writeError(w, http.StatusConflict, "username is already taken")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"user": newUserResponse(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.internalError(w, r, err)
		return
	}
	if err := s.passwords.Check(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	identity := auth.Identity{UserID: user.ID, Username: user.Username}
	accessToken, err := s.tokens.IssueAccess(identity)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	refreshToken, err := s.tokens.IssueRefresh(identity)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         newUserResponse(user),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh token is required")
		return
	}

	accessToken, err := s.tokens.Refresh(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired token")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"accessToken": accessToken})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	payload := make([]userResponse, 0, len(users))
	for _, user := range users {
		payload = append(payload, newUserResponse(user))
	}
	writeSuccess(w, http.StatusOK, envelope{"users": payload})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	user, err := s.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"user": newUserResponse(user)})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.passwords.Validate(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	// Deliberately a 400, not a 401: clients must not treat a mistyped old
	// password as a session failure and trigger a token refresh.
	if err := s.passwords.Check(user.PasswordHash, req.OldPassword); err != nil {
		writeError(w, http.StatusBadRequest, "old password is incorrect")
		return
	}

	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if err := s.store.UpdatePasswordHash(r.Context(), user.ID, hash); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "password updated"})
}

func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	file, header, err := r.FormFile("audio")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'audio' is required")
		return
	}
	defer file.Close()

	record, err := s.intake.Accept(r.Context(), intake.Upload{
		Reader:       file,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		DeclaredSize: header.Size,
		OwnerID:      &identity.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrUnsupportedMedia):
			writeError(w, http.StatusUnsupportedMediaType, "only audio uploads are accepted")
		case errors.Is(err, intake.ErrPayloadTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		default:
			s.internalError(w, r, err)
		}
		return
	}

	if err := s.pipeline.Enqueue(record); err != nil {
		s.logger.Warn("upload accepted but not enqueued",
			logging.Int64(logging.FieldFileID, record.ID),
			logging.Error(err))
	}
	writeSuccess(w, http.StatusCreated, envelope{"file": newAudioFileResponse(record)})
}

func (s *Server) handleListAudioFiles(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 10)
	if size > 100 {
		size = 100
	}

	files, total, err := s.store.ListAudioFiles(r.Context(), page, size)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	payload := make([]audioFileResponse, 0, len(files))
	for _, file := range files {
		payload = append(payload, newAudioFileResponse(file))
	}
	writeSuccess(w, http.StatusOK, envelope{
		"files": payload,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

func (s *Server) handleDeleteAudioFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	file, err := s.store.GetAudioFileByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	// Remove the payload before the row: a retry after a partial failure then
	// finds the row again and the file removal is idempotent.
	if err := s.intake.RemoveFile(file.StoredName); err != nil {
		s.internalError(w, r, err)
		return
	}
	if _, err := s.store.DeleteAudioFile(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.internalError(w, r, err)
		return
	}
	s.pipeline.Forget(file.StoredName)
	writeSuccess(w, http.StatusOK, envelope{"message": "file deleted"})
}

func (s *Server) handleProcessingStatus(w http.ResponseWriter, r *http.Request) {
	storedName := chi.URLParam(r, "name")
	status := s.pipeline.Status(r.Context(), storedName)

	fields := envelope{"status": string(status.State)}
	switch {
	case status.State == pipeline.StateCompleted:
		fields["riskLevel"] = string(status.RiskLevel)
		fields["confidence"] = status.Confidence
	case status.Message != "":
		fields["message"] = status.Message
	}
	writeSuccess(w, http.StatusOK, fields)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	s.logger.Error("request failed",
		logging.String(logging.FieldRequestID, requestID),
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
