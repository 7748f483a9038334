package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestPutThenGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\n0000")
	ref, err := store.Put(context.Background(), "exam-1/overlays/img-1_overlay.png", png, "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ref != "exam-1/overlays/img-1_overlay.png" {
		t.Fatalf("unexpected ref %q", ref)
	}

	obj, err := store.Get(context.Background(), ref)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(obj.Data) != string(png) {
		t.Fatalf("unexpected data %q", obj.Data)
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", obj.ContentType)
	}
}

func TestPutLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "exam-1/a.jpg", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "exam-1"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.jpg" {
		t.Fatalf("unexpected directory contents %v", entries)
	}
}

func TestGetMissingObject(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = store.Get(context.Background(), "exam-1/missing.png")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestDeleteRemovesObjectAndIgnoresMissing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ref, err := store.Put(context.Background(), "exam-1/a.jpg", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(context.Background(), ref); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected object to be gone, got %v", err)
	}
	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("deleting a missing object must succeed, got %v", err)
	}
	if err := store.Delete(context.Background(), "../escape.png"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRejectsRefsOutsideRoot(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, ref := range []string{"../escape.png", "/etc/passwd", "", "exam-1/../../x.png"} {
		if _, err := store.Put(context.Background(), ref, []byte("x"), ""); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Put(%q) expected ErrInvalidInput, got %v", ref, err)
		}
	}
}
