// Package client is the Go counterpart of the web dashboard's session layer:
// it talks to the HTTP API, attaches the access token to every request, and
// transparently refreshes an expired session once before giving up.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrSessionExpired is returned when the session cannot be refreshed; local
// credentials are cleared before it is surfaced.
var ErrSessionExpired = errors.New("session expired, log in again")

// ErrNotLoggedIn is returned for authenticated calls made with no saved
// credentials.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError carries the server's failure envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client is a session-managing API client.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *CredentialsStore

	// refreshMu serializes token refreshes so simultaneous 401s collapse
	// into a single refresh call.
	refreshMu sync.Mutex
}

// New builds a client for the given server address using the credentials file
// at credsPath.
func New(baseURL string, credsPath string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		creds:   NewCredentialsStore(credsPath),
	}
}

// User mirrors the API's user payload.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

// AudioFile mirrors the API's audio file payload.
type AudioFile struct {
	ID           int64   `json:"id"`
	StoredName   string  `json:"storedName"`
	OriginalName string  `json:"originalName"`
	MimeType     string  `json:"mimeType"`
	Size         int64   `json:"size"`
	RiskLevel    string  `json:"riskLevel"`
	Confidence   float64 `json:"confidence"`
	UploadedAt   string  `json:"uploadedAt"`
	URL          string  `json:"url"`
}

// FilePage is one page of the audio file listing.
type FilePage struct {
	Files []AudioFile `json:"files"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// ProcessingStatus is the ephemeral pipeline state of one upload.
type ProcessingStatus struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	RiskLevel  string  `json:"riskLevel"`
	Confidence float64 `json:"confidence"`
}

// InitStatus reports whether the server has a bootstrap admin.
func (c *Client) InitStatus(ctx context.Context) (bool, error) {
	var out struct {
		Initialized bool `json:"initialized"`
	}
	err := c.doPublic(ctx, http.MethodGet, "/api/init-status", nil, &out)
	return out.Initialized, err
}

// InitAdmin creates the bootstrap admin on an uninitialized server.
func (c *Client) InitAdmin(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.doPublic(ctx, http.MethodPost, "/api/init-admin", body, nil)
}

// Register creates a new user account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.doPublic(ctx, http.MethodPost, "/api/register", body, nil)
}

// Login authenticates and saves the returned session credentials.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.doPublic(ctx, http.MethodPost, "/api/login", body, &out); err != nil {
		return err
	}
	return c.creds.Save(Credentials{
		Username:     username,
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	})
}

// Logout discards the saved session.
func (c *Client) Logout() error {
	return c.creds.Clear()
}

// Profile fetches the current user.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.doAuthed(ctx, http.MethodGet, "/api/users/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListUsers fetches all registered users.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.doAuthed(ctx, http.MethodGet, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ChangePassword rotates the current user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{"oldPassword": oldPassword, "newPassword": newPassword}
	return c.doAuthed(ctx, http.MethodPut, "/api/users/change-password", body, nil)
}

// ListFiles fetches one page of audio files.
func (c *Client) ListFiles(ctx context.Context, page, size int) (*FilePage, error) {
	var out FilePage
	path := fmt.Sprintf("/api/audio-files?page=%d&size=%d", page, size)
	if err := c.doAuthed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFile removes an upload and its metadata row.
func (c *Client) DeleteFile(ctx context.Context, id int64) error {
	return c.doAuthed(ctx, http.MethodDelete, fmt.Sprintf("/api/audio-files/%d", id), nil, nil)
}

// Status fetches the ephemeral processing status of an upload.
func (c *Client) Status(ctx context.Context, storedName string) (*ProcessingStatus, error) {
	var out ProcessingStatus
	if err := c.doAuthed(ctx, http.MethodGet, "/api/audio-processing-status/"+storedName, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile streams a local audio file to the server.
func (c *Client) UploadFile(ctx context.Context, localPath string) (*AudioFile, error) {
	payload, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="audio"; filename=%q`, filepath.Base(localPath)))
	header.Set("Content-Type", mimeTypeForExtension(filepath.Ext(localPath)))
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	var out struct {
		File AudioFile `json:"file"`
	}
	err = c.doAuthedRaw(ctx, http.MethodPost, "/api/upload-audio", buf.Bytes(), writer.FormDataContentType(), &out)
	if err != nil {
		return nil, err
	}
	return &out.File, nil
}

func mimeTypeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return "audio/octet-stream"
	}
}

// doPublic performs an unauthenticated JSON request.
func (c *Client) doPublic(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	resp, err := c.send(ctx, method, path, payload, "application/json", "")
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// doAuthed performs an authenticated JSON request with one refresh-and-retry
// on authorization failure.
func (c *Client) doAuthed(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	return c.doAuthedRaw(ctx, method, path, payload, "application/json", out)
}

func (c *Client) doAuthedRaw(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	creds, err := c.creds.Load()
	if err != nil {
		return err
	}
	if creds.AccessToken == "" {
		return ErrNotLoggedIn
	}

	resp, err := c.send(ctx, method, path, payload, contentType, creds.AccessToken)
	if err != nil {
		return err
	}
	if !isAuthFailure(resp.StatusCode) {
		return decodeResponse(resp, out)
	}
	resp.Body.Close()

	token, err := c.refreshAccessToken(ctx, creds.AccessToken)
	if err != nil {
		return err
	}

	// Exactly one retry with the refreshed token.
	resp, err = c.send(ctx, method, path, payload, contentType, token)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func isAuthFailure(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

// refreshAccessToken mints a new access token via the refresh endpoint. Only
// one refresh runs at a time: callers that queued behind an in-flight refresh
// reuse its result instead of issuing their own call. A failed refresh forces
// logout.
func (c *Client) refreshAccessToken(ctx context.Context, staleToken string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	creds, err := c.creds.Load()
	if err != nil {
		return "", err
	}
	// Another request already replaced the token while this one waited.
	if creds.AccessToken != "" && creds.AccessToken != staleToken {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		c.creds.Clear()
		return "", ErrSessionExpired
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": creds.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", payload, "application/json", "")
	if err != nil {
		return "", err
	}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeResponse(resp, &out); err != nil || out.AccessToken == "" {
		c.creds.Clear()
		return "", ErrSessionExpired
	}

	creds.AccessToken = out.AccessToken
	if err := c.creds.Save(creds); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, contentType, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// decodeResponse closes the body, surfaces failure envelopes as *APIError,
// and decodes successful bodies into out when requested.
func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &failure)
		if failure.Message == "" {
			failure.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
