package domain

import (
	"strings"
	"time"
)

// Kind identifies one of the supported generation operations.
type Kind string

const (
	KindTextToAudio  Kind = "text-to-audio"
	KindAudioToAudio Kind = "audio-to-audio"
	KindInpaint      Kind = "audio-inpainting"
)

// Prefix returns the filename prefix that encodes the kind on disk.
func (k Kind) Prefix() string {
	switch k {
	case KindAudioToAudio:
		return "a2a"
	case KindInpaint:
		return "inpaint"
	default:
		return "audio"
	}
}

// KindFromFilename infers the operation kind from an artifact filename.
// It is the degraded resolution tier used when a sidecar is absent or
// unreadable: anything without a recognized prefix counts as text-to-audio.
func KindFromFilename(name string) Kind {
	switch {
	case strings.HasPrefix(name, "a2a_"):
		return KindAudioToAudio
	case strings.HasPrefix(name, "inpaint_"):
		return KindInpaint
	default:
		return KindTextToAudio
	}
}

// TextToAudioParams are the validated inputs for a text-to-audio call.
type TextToAudioParams struct {
	Prompt       string
	Duration     int
	OutputFormat string
	Model        string
}

// AudioToAudioParams are the validated inputs for an audio-to-audio call.
type AudioToAudioParams struct {
	Prompt       string
	Duration     int
	OutputFormat string
	Strength     float64
	Model        string
}

// InpaintParams are the validated inputs for an audio-inpainting call.
type InpaintParams struct {
	Prompt       string
	Duration     int
	OutputFormat string
	MaskStart    float64
	MaskEnd      float64
	Seed         int64
	Steps        int
	Model        string
}

// Metadata is the sidecar document persisted next to every artifact. Field
// names match the on-disk JSON produced by earlier releases, so older
// galleries keep loading.
type Metadata struct {
	Prompt         string   `json:"prompt"`
	Duration       int      `json:"duration"`
	OutputFormat   string   `json:"output_format"`
	Model          string   `json:"model"`
	Type           Kind     `json:"type,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	SourceFilename string   `json:"source_filename,omitempty"`
	MaskStart      *float64 `json:"mask_start,omitempty"`
	MaskEnd        *float64 `json:"mask_end,omitempty"`
	Seed           *int64   `json:"seed,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	Created        string   `json:"created"`
}

// ArtifactSummary is one gallery entry returned by the listing endpoint.
// Filename, URL, Type and Created are always present; the remaining fields
// are only known when the sidecar could be read.
type ArtifactSummary struct {
	Filename       string    `json:"filename"`
	URL            string    `json:"url"`
	Created        time.Time `json:"created"`
	Type           Kind      `json:"type"`
	Prompt         string    `json:"prompt,omitempty"`
	Duration       int       `json:"duration,omitempty"`
	OutputFormat   string    `json:"output_format,omitempty"`
	Model          string    `json:"model,omitempty"`
	Strength       *float64  `json:"strength,omitempty"`
	SourceFilename string    `json:"source_filename,omitempty"`
	MaskStart      *float64  `json:"mask_start,omitempty"`
	MaskEnd        *float64  `json:"mask_end,omitempty"`
	Seed           *int64    `json:"seed,omitempty"`
	Steps          *int      `json:"steps,omitempty"`
}
