package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file of the requested size at path, filled with a
// repeating byte pattern standing in for audio payload. A size <= 0 writes a
// single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	chunk := make([]byte, 64*1024)
	for i := range chunk {
		chunk[i] = byte('A' + i%26)
	}

	for written := int64(0); written < size; {
		n := int64(len(chunk))
		if size-written < n {
			n = size - written
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		written += n
	}
}
