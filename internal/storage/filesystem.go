// Package storage persists generated audio artifacts and their metadata
// sidecars on the local filesystem, and reconstructs the gallery listing
// from them.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// Store keeps paired payload and sidecar files under a single directory.
// Identifiers are `{prefix}_{millisecond-timestamp}`; the prefix doubles as
// a fallback signal for the operation kind when a sidecar is lost.
type Store struct {
	basePath string
	logger   zerolog.Logger

	mu        sync.Mutex
	lastStamp int64
}

// NewStore initializes a Store rooted at basePath, creating it if absent.
func NewStore(basePath string, logger zerolog.Logger) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &Store{basePath: basePath, logger: logger}, nil
}

// BasePath returns the configured root directory.
func (s *Store) BasePath() string {
	return s.basePath
}

// Persist writes the payload under a fresh identifier, then its metadata
// sidecar. The payload is written first: a crash between the two writes
// leaves an artifact whose kind can still be inferred from its prefix,
// never an orphan sidecar. Returns the artifact filename.
func (s *Store) Persist(kind domain.Kind, data []byte, format string, meta domain.Metadata) (string, error) {
	stamp := s.nextStamp()
	filename := fmt.Sprintf("%s_%d.%s", kind.Prefix(), stamp, format)

	if err := os.WriteFile(filepath.Join(s.basePath, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write artifact: %w", err)
	}

	sidecar, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("storage: encode sidecar failed")
		return filename, nil
	}
	sidecarName := fmt.Sprintf("%s_%d.txt", kind.Prefix(), stamp)
	if err := os.WriteFile(filepath.Join(s.basePath, sidecarName), sidecar, 0o644); err != nil {
		// The artifact itself is durable; listing falls back to prefix
		// inference for this entry.
		s.logger.Warn().Err(err).Str("filename", filename).Msg("storage: write sidecar failed")
	}
	return filename, nil
}

// nextStamp hands out strictly increasing millisecond timestamps so that
// two persists landing in the same instant cannot collide.
func (s *Store) nextStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// List scans the storage directory and returns one summary per artifact,
// newest first. Metadata resolution is two-tier: the sidecar is
// authoritative when it parses; otherwise the kind is inferred from the
// filename prefix and sidecar-only fields are omitted. File modification
// time supplies the creation timestamp independently of the sidecar.
func (s *Store) List() ([]domain.ArtifactSummary, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: read directory: %w", err)
	}

	summaries := make([]domain.ArtifactSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".mp3" && ext != ".wav" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		summaries = append(summaries, s.summarize(name, info.ModTime()))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Created.After(summaries[j].Created)
	})
	return summaries, nil
}

func (s *Store) summarize(name string, created time.Time) domain.ArtifactSummary {
	summary := domain.ArtifactSummary{
		Filename: name,
		Created:  created,
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	raw, err := os.ReadFile(filepath.Join(s.basePath, stem+".txt"))
	if err != nil {
		summary.Type = domain.KindFromFilename(name)
		return summary
	}
	var meta domain.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		s.logger.Warn().Err(err).Str("filename", name).Msg("storage: unreadable sidecar")
		summary.Type = domain.KindFromFilename(name)
		return summary
	}

	summary.Prompt = meta.Prompt
	summary.Duration = meta.Duration
	summary.OutputFormat = meta.OutputFormat
	summary.Model = meta.Model
	summary.Strength = meta.Strength
	summary.SourceFilename = meta.SourceFilename
	summary.MaskStart = meta.MaskStart
	summary.MaskEnd = meta.MaskEnd
	summary.Seed = meta.Seed
	summary.Steps = meta.Steps
	summary.Type = meta.Type
	if summary.Type == "" {
		summary.Type = domain.KindTextToAudio
	}
	return summary
}

// Open returns a reader over a previously persisted artifact, or
// domain.ErrNotFound. Filenames are reduced to their base name so a
// request cannot escape the storage root.
func (s *Store) Open(filename string) (*os.File, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, domain.ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.basePath, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("storage: open artifact: %w", err)
	}
	return f, nil
}

// ContentType maps a stored filename to the media type served on download.
func ContentType(filename string) string {
	if strings.EqualFold(filepath.Ext(filename), ".wav") {
		return "audio/wav"
	}
	return "audio/mpeg"
}
