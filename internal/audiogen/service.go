// Package audiogen composes validation output, the provider client, the
// temporary upload store and the artifact store into the three end-to-end
// generation operations.
package audiogen

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/storage"
	"server/internal/upload"
)

// Provider is the slice of the generation client the service depends on.
type Provider interface {
	TextToAudio(ctx context.Context, p domain.TextToAudioParams) ([]byte, error)
	AudioToAudio(ctx context.Context, p domain.AudioToAudioParams, sourcePath, sourceName string) ([]byte, error)
	Inpaint(ctx context.Context, p domain.InpaintParams, sourcePath, sourceName string) ([]byte, error)
	Model() string
	HasCredentials() bool
}

// Result identifies a persisted artifact.
type Result struct {
	Filename string
	URL      string
}

// Service orchestrates one generation request at a time: validate upstream,
// call the provider once, persist on success, and release any staged upload
// on every exit path.
type Service struct {
	provider Provider
	store    *storage.Store
	uploads  *upload.Store
	logger   zerolog.Logger
}

// NewService wires the orchestrator's collaborators.
func NewService(provider Provider, store *storage.Store, uploads *upload.Store, logger zerolog.Logger) *Service {
	return &Service{provider: provider, store: store, uploads: uploads, logger: logger}
}

// Generate runs a text-to-audio request end to end.
func (s *Service) Generate(ctx context.Context, p domain.TextToAudioParams) (*Result, error) {
	if !s.provider.HasCredentials() {
		return nil, domain.ErrMissingAPIKey
	}
	if p.Model == "" {
		p.Model = s.provider.Model()
	}

	s.logger.Info().
		Str("prompt", p.Prompt).
		Str("output_format", p.OutputFormat).
		Int("duration", p.Duration).
		Msg("generating audio")

	data, err := s.provider.TextToAudio(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.persist(domain.KindTextToAudio, data, p.OutputFormat, domain.Metadata{
		Prompt:       p.Prompt,
		Duration:     p.Duration,
		OutputFormat: p.OutputFormat,
		Model:        p.Model,
		Type:         domain.KindTextToAudio,
		Created:      createdNow(),
	})
}

// Transform runs an audio-to-audio request end to end. The staged source
// upload is released before this method returns, success or failure.
func (s *Service) Transform(ctx context.Context, p domain.AudioToAudioParams, src *upload.Handle) (*Result, error) {
	defer s.uploads.Release(src)

	if !s.provider.HasCredentials() {
		return nil, domain.ErrMissingAPIKey
	}
	if p.Model == "" {
		p.Model = s.provider.Model()
	}

	s.logger.Info().
		Str("prompt", p.Prompt).
		Str("output_format", p.OutputFormat).
		Float64("strength", p.Strength).
		Msg("transforming audio")

	data, err := s.provider.AudioToAudio(ctx, p, src.Path, src.OriginalName)
	if err != nil {
		return nil, err
	}
	strength := p.Strength
	return s.persist(domain.KindAudioToAudio, data, p.OutputFormat, domain.Metadata{
		Prompt:         p.Prompt,
		Duration:       p.Duration,
		OutputFormat:   p.OutputFormat,
		Model:          p.Model,
		Type:           domain.KindAudioToAudio,
		Strength:       &strength,
		SourceFilename: src.OriginalName,
		Created:        createdNow(),
	})
}

// Inpaint runs an audio-inpainting request end to end. The staged source
// upload is released before this method returns, success or failure.
func (s *Service) Inpaint(ctx context.Context, p domain.InpaintParams, src *upload.Handle) (*Result, error) {
	defer s.uploads.Release(src)

	if !s.provider.HasCredentials() {
		return nil, domain.ErrMissingAPIKey
	}
	if p.Model == "" {
		p.Model = s.provider.Model()
	}

	s.logger.Info().
		Str("prompt", p.Prompt).
		Float64("mask_start", p.MaskStart).
		Float64("mask_end", p.MaskEnd).
		Msg("inpainting audio")

	data, err := s.provider.Inpaint(ctx, p, src.Path, src.OriginalName)
	if err != nil {
		return nil, err
	}
	maskStart, maskEnd := p.MaskStart, p.MaskEnd
	seed, steps := p.Seed, p.Steps
	return s.persist(domain.KindInpaint, data, p.OutputFormat, domain.Metadata{
		Prompt:         p.Prompt,
		Duration:       p.Duration,
		OutputFormat:   p.OutputFormat,
		Model:          p.Model,
		Type:           domain.KindInpaint,
		SourceFilename: src.OriginalName,
		MaskStart:      &maskStart,
		MaskEnd:        &maskEnd,
		Seed:           &seed,
		Steps:          &steps,
		Created:        createdNow(),
	})
}

// Stage hands an incoming source clip to the upload store on behalf of the
// transport layer.
func (s *Service) Stage(src io.Reader, originalName string) (*upload.Handle, error) {
	return s.uploads.Stage(src, originalName)
}

func (s *Service) persist(kind domain.Kind, data []byte, format string, meta domain.Metadata) (*Result, error) {
	filename, err := s.store.Persist(kind, data, format, meta)
	if err != nil {
		return nil, fmt.Errorf("persist artifact: %w", err)
	}
	s.logger.Info().Str("filename", filename).Msg("audio generated successfully")
	return &Result{Filename: filename, URL: "/download/" + filename}, nil
}

func createdNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
