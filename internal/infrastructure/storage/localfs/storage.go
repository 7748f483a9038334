package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// Put writes data under ref and returns ref. The file is written to a
// temporary name first so readers never see a partial image.
func (s *Storage) Put(ctx context.Context, ref string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename file: %w", err)
	}
	return ref, nil
}

func (s *Storage) Get(ctx context.Context, ref string) (domain.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredObject{}, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return domain.StoredObject{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StoredObject{}, fmt.Errorf("open file: %w", err)
	}
	return domain.StoredObject{
		Data:        data,
		ContentType: analysis.DetectMIME(ref, "", data),
	}, nil
}

func (s *Storage) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Storage) resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(ref)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve storage ref", fmt.Errorf("ref %q escapes storage root", ref))
	}
	return filepath.Join(s.basePath, clean), nil
}
