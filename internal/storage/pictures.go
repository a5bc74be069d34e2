package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrEmptyUpload = errors.New("uploaded file is empty")

// PictureStore keeps profile pictures on local disk under <dir>/<accountID>/.
type PictureStore struct {
	dir string
}

func NewPictureStore(dir string) *PictureStore {
	return &PictureStore{dir: dir}
}

// Save writes the upload under a fresh uuid name, keeping the original extension, and
// returns the stored path.
func (s *PictureStore) Save(accountID string, file *multipart.FileHeader) (string, error) {
	if file == nil || file.Size == 0 {
		return "", ErrEmptyUpload
	}
	if accountID == "" || strings.ContainsAny(accountID, `/\`) || accountID == "." || accountID == ".." {
		return "", fmt.Errorf("invalid account id %q", accountID)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	accountDir := filepath.Join(s.dir, accountID)
	if err := os.MkdirAll(accountDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	dstPath := filepath.Join(accountDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return dstPath, nil
}

// Remove deletes a previously stored picture. Paths outside the store are ignored.
func (s *PictureStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
