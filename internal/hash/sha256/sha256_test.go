package sha256

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAgreesWithReader(t *testing.T) {
	t.Parallel()

	h := New()
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := h.Hash([]byte("hello world")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	got, err := h.HashReader(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if got != want {
		t.Fatalf("reader digest %s != %s", got, want)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestHashReaderError(t *testing.T) {
	t.Parallel()

	if _, err := New().HashReader(failingReader{}); err == nil {
		t.Fatal("expected error")
	}
}
