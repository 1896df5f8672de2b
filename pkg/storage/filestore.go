package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// WriteFileAtomic writes a file by streaming into a temp file in the same
// directory, syncing it and renaming it over path. Readers see either the old
// file or the complete new one, never a partial write.
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", models.ErrSerializationFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file in %s: %v", models.ErrSerializationFailure, dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", models.ErrSerializationFailure, path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%w: failed to flush %s: %v", models.ErrSerializationFailure, path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %v", models.ErrSerializationFailure, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %v", models.ErrSerializationFailure, path, err)
	}
	if err = os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("%w: failed to chmod %s: %v", models.ErrSerializationFailure, path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: failed to rename into %s: %v", models.ErrSerializationFailure, path, err)
	}
	return nil
}

// WriteJSON atomically writes v as indented JSON
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal %s: %v", models.ErrSerializationFailure, path, err)
	}
	return WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// ReadJSON decodes the JSON file at path into v. A missing file is
// ErrMissingInput, undecodable content is ErrSerializationFailure.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", models.ErrMissingInput, path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", models.ErrSerializationFailure, path, err)
	}
	return nil
}

// FileStore writes named artifacts under a base directory. Writes to the
// same store are serialized so two runs never race on one file.
type FileStore struct {
	basePath string
	mu       sync.Mutex
}

// NewFileStore creates a new file-based artifact store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// Path returns the full path of a named artifact
func (fs *FileStore) Path(name string) string {
	return filepath.Join(fs.basePath, name)
}

// SaveJSON atomically stores v as JSON under name and returns its path
func (fs *FileStore) SaveJSON(name string, v interface{}) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.Path(name)
	if err := WriteJSON(path, v); err != nil {
		return "", err
	}
	return path, nil
}

// SaveText atomically stores text under name and returns its path
func (fs *FileStore) SaveText(name, text string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.Path(name)
	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, text)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}
