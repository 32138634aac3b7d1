// Package validate turns raw request fields into typed generation
// parameters. Every function is pure: the first rule violation wins and is
// reported as a *domain.ValidationError naming the offending field.
package validate

import (
	"strconv"
	"strings"

	"server/internal/domain"
)

const (
	// MaxSourceAudioBytes caps uploaded source clips at 50 MiB.
	MaxSourceAudioBytes = 50 << 20

	DefaultDuration        = 20
	DefaultInpaintDuration = 190
	DefaultStrength        = 0.7
	DefaultMaskStart       = 0.0
	DefaultMaskEnd         = 190.0
	DefaultSeed            = 0
	DefaultSteps           = 8

	maxTextToAudioDuration = 120
	maxAudioDuration       = 190
	maxSeed                = 4294967294
)

// RawFields carries untyped request fields as received on the wire. Values
// come from a JSON body or a multipart form; the empty string means the
// field was absent.
type RawFields struct {
	Prompt       string
	Duration     string
	OutputFormat string
	Strength     string
	MaskStart    string
	MaskEnd      string
	Seed         string
	Steps        string
	Model        string
}

// TextToAudio validates fields for a text-to-audio request.
func TextToAudio(f RawFields) (domain.TextToAudioParams, error) {
	var p domain.TextToAudioParams

	prompt, err := prompt(f.Prompt)
	if err != nil {
		return p, err
	}
	format, err := outputFormat(f.OutputFormat)
	if err != nil {
		return p, err
	}
	duration, err := duration(f.Duration, DefaultDuration, maxTextToAudioDuration)
	if err != nil {
		return p, err
	}

	p = domain.TextToAudioParams{
		Prompt:       prompt,
		Duration:     duration,
		OutputFormat: format,
		Model:        strings.TrimSpace(f.Model),
	}
	return p, nil
}

// AudioToAudio validates fields for an audio-to-audio request. hasAudio
// reports whether a source clip was bound to the request; the clip itself is
// checked separately via SourceAudio.
func AudioToAudio(f RawFields, hasAudio bool) (domain.AudioToAudioParams, error) {
	var p domain.AudioToAudioParams

	prompt, err := prompt(f.Prompt)
	if err != nil {
		return p, err
	}
	if !hasAudio {
		return p, domain.Invalid("audio", "Audio file is required")
	}
	format, err := outputFormat(f.OutputFormat)
	if err != nil {
		return p, err
	}
	duration, err := duration(f.Duration, DefaultDuration, maxAudioDuration)
	if err != nil {
		return p, err
	}
	strength, err := floatInRange("strength", f.Strength, DefaultStrength, 0.01, 1.0,
		"Strength must be between 0.01 and 1.0")
	if err != nil {
		return p, err
	}

	p = domain.AudioToAudioParams{
		Prompt:       prompt,
		Duration:     duration,
		OutputFormat: format,
		Strength:     strength,
		Model:        strings.TrimSpace(f.Model),
	}
	return p, nil
}

// Inpaint validates fields for an audio-inpainting request.
func Inpaint(f RawFields, hasAudio bool) (domain.InpaintParams, error) {
	var p domain.InpaintParams

	prompt, err := prompt(f.Prompt)
	if err != nil {
		return p, err
	}
	if !hasAudio {
		return p, domain.Invalid("audio", "Audio file is required")
	}
	format, err := outputFormat(f.OutputFormat)
	if err != nil {
		return p, err
	}
	duration, err := duration(f.Duration, DefaultInpaintDuration, maxAudioDuration)
	if err != nil {
		return p, err
	}
	maskStart, err := floatInRange("mask_start", f.MaskStart, DefaultMaskStart, 0, maxAudioDuration,
		"mask_start must be between 0 and 190 seconds")
	if err != nil {
		return p, err
	}
	maskEnd, err := floatInRange("mask_end", f.MaskEnd, DefaultMaskEnd, 0, maxAudioDuration,
		"mask_end must be between 0 and 190 seconds")
	if err != nil {
		return p, err
	}
	if maskStart >= maskEnd {
		return p, domain.Invalid("mask_start", "mask_start must be less than mask_end")
	}
	seed, err := seed(f.Seed)
	if err != nil {
		return p, err
	}
	steps, err := steps(f.Steps)
	if err != nil {
		return p, err
	}

	p = domain.InpaintParams{
		Prompt:       prompt,
		Duration:     duration,
		OutputFormat: format,
		MaskStart:    maskStart,
		MaskEnd:      maskEnd,
		Seed:         seed,
		Steps:        steps,
		Model:        strings.TrimSpace(f.Model),
	}
	return p, nil
}

// SourceAudio enforces the transport-boundary rules for an uploaded source
// clip: a declared audio media type and a bounded size.
func SourceAudio(contentType string, size int64) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "audio/") {
		return domain.Invalid("audio", "Only audio files are allowed")
	}
	if size > MaxSourceAudioBytes {
		return domain.Invalid("audio", "Audio file exceeds the 50MB limit")
	}
	return nil
}

func prompt(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", domain.Invalid("prompt", "Prompt is required")
	}
	return p, nil
}

func outputFormat(raw string) (string, error) {
	if raw == "" {
		return "mp3", nil
	}
	if raw != "mp3" && raw != "wav" {
		return "", domain.Invalid("output_format", "Invalid output format. Must be mp3 or wav.")
	}
	return raw, nil
}

func duration(raw string, fallback, limit int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalid("duration", "Duration must be an integer number of seconds")
	}
	if v < 1 || v > limit {
		return 0, domain.Invalid("duration", "Duration must be between 1 and %d seconds", limit)
	}
	return v, nil
}

func floatInRange(field, raw string, fallback, lo, hi float64, msg string) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.Invalid(field, "%s", msg)
	}
	if v < lo || v > hi {
		return 0, domain.Invalid(field, "%s", msg)
	}
	return v, nil
}

func seed(raw string) (int64, error) {
	if raw == "" {
		return DefaultSeed, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 || v > maxSeed {
		return 0, domain.Invalid("seed", "Seed must be between 0 and 4294967294")
	}
	return v, nil
}

func steps(raw string) (int, error) {
	if raw == "" {
		return DefaultSteps, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 4 || v > 8 {
		return 0, domain.Invalid("steps", "Steps must be between 4 and 8")
	}
	return v, nil
}
