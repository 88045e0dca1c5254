package testsupport

import (
	"context"
	"fmt"
	"testing"

	"pipewatch/internal/config"
	"pipewatch/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewUser registers a user for tests using the provided store.
func NewUser(t testing.TB, st *store.Store, username string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), username, "test-hash")
	if err != nil {
		t.Fatalf("store.CreateUser: %v", err)
	}
	return user
}

// NewAudioFile inserts an unclassified audio file row for tests.
func NewAudioFile(t testing.TB, st *store.Store, storedName string, ownerID *int64) *store.AudioFile {
	t.Helper()

	file, err := st.CreateAudioFile(context.Background(), store.NewAudioFileParams{
		StoredName:   storedName,
		OriginalName: fmt.Sprintf("original-%s.wav", storedName),
		MimeType:     "audio/wav",
		Size:         1024,
		OwnerID:      ownerID,
	})
	if err != nil {
		t.Fatalf("store.CreateAudioFile: %v", err)
	}
	return file
}
