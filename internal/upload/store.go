// Package upload stages incoming source-audio files on disk for the
// lifetime of a single generation request.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle identifies one staged upload.
type Handle struct {
	Path         string
	OriginalName string
	Size         int64
}

// Store owns the staging directory. Staged files must not outlive the
// request that created them; the orchestrator releases every handle on
// every exit path.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore initializes a Store rooted at dir, creating it if absent.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("upload: staging directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: ensure staging directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Stage streams src into a uniquely named file under the staging directory
// and returns a handle for it. On a partial write the file is removed
// before the error is returned.
func (s *Store) Stage(src io.Reader, originalName string) (*Handle, error) {
	path := filepath.Join(s.dir, uuid.NewString()+filepath.Ext(originalName))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("upload: create staging file: %w", err)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("upload: write staging file: %w", err)
	}
	return &Handle{Path: path, OriginalName: originalName, Size: size}, nil
}

// Release deletes the staged file. It is idempotent: deleting an
// already-absent file is not an error, only logged.
func (s *Store) Release(h *Handle) {
	if h == nil {
		return
	}
	if err := os.Remove(h.Path); err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("path", h.Path).Msg("staged upload already removed")
		} else {
			s.logger.Error().Err(err).Str("path", h.Path).Msg("failed to remove staged upload")
		}
		return
	}
	s.logger.Debug().Str("path", h.Path).Msg("released staged upload")
}
