package blobstore_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"fieldcapture/internal/blobstore"
	"fieldcapture/internal/faults"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	locator, size, err := store.Save(strings.NewReader("capture bytes"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if size != int64(len("capture bytes")) {
		t.Fatalf("expected size %d, got %d", len("capture bytes"), size)
	}

	reader, err := store.Open(locator)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()
	contents, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(contents) != "capture bytes" {
		t.Fatalf("unexpected blob contents %q", contents)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	locator, _, err := store.Save(strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(locator); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(locator); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Open(locator); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	store, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, locator := range []string{"../etc/passwd", "ab/../../x", "", "ab", "zz/not-a-uuid"} {
		if _, err := store.Path(locator); !errors.Is(err, faults.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", locator, err)
		}
	}
}
