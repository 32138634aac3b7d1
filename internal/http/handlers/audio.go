package handlers

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/storage"
	"server/internal/validate"
)

// maxRequestBytes bounds an inbound multipart body: the 50 MiB source clip
// plus headroom for the other form fields.
const maxRequestBytes = validate.MaxSourceAudioBytes + 1<<20

type generateRequest struct {
	Prompt       string      `json:"prompt"`
	Duration     json.Number `json:"duration"`
	OutputFormat string      `json:"output_format"`
	Model        string      `json:"model"`
}

type generateResponse struct {
	Success      bool        `json:"success"`
	Filename     string      `json:"filename"`
	URL          string      `json:"url"`
	Prompt       string      `json:"prompt"`
	Duration     int         `json:"duration"`
	OutputFormat string      `json:"output_format"`
	Model        string      `json:"model"`
	Type         domain.Kind `json:"type,omitempty"`
	Strength     *float64    `json:"strength,omitempty"`
	MaskStart    *float64    `json:"mask_start,omitempty"`
	MaskEnd      *float64    `json:"mask_end,omitempty"`
	Seed         *int64      `json:"seed,omitempty"`
	Steps        *int        `json:"steps,omitempty"`
}

// Generate handles text-to-audio requests.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	params, err := validate.TextToAudio(validate.RawFields{
		Prompt:       req.Prompt,
		Duration:     req.Duration.String(),
		OutputFormat: req.OutputFormat,
		Model:        req.Model,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	if params.Model == "" {
		params.Model = a.Config.StabilityModel
	}

	result, err := a.Service.Generate(r.Context(), params)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{
		Success:      true,
		Filename:     result.Filename,
		URL:          result.URL,
		Prompt:       params.Prompt,
		Duration:     params.Duration,
		OutputFormat: params.OutputFormat,
		Model:        params.Model,
	})
}

// GenerateA2A handles audio-to-audio requests (multipart).
func (a *App) GenerateA2A(w http.ResponseWriter, r *http.Request) {
	file, header, ok := a.parseMultipart(w, r)
	if file != nil {
		defer file.Close()
	}
	if !ok {
		return
	}

	params, err := validate.AudioToAudio(a.formFields(r), file != nil)
	if err != nil {
		a.fail(w, err)
		return
	}
	if err := validate.SourceAudio(header.Header.Get("Content-Type"), header.Size); err != nil {
		a.fail(w, err)
		return
	}
	if params.Model == "" {
		params.Model = a.Config.StabilityModel
	}

	handle, err := a.Service.Stage(file, header.Filename)
	if err != nil {
		a.fail(w, err)
		return
	}
	result, err := a.Service.Transform(r.Context(), params, handle)
	if err != nil {
		a.fail(w, err)
		return
	}
	strength := params.Strength
	a.json(w, http.StatusOK, generateResponse{
		Success:      true,
		Filename:     result.Filename,
		URL:          result.URL,
		Prompt:       params.Prompt,
		Duration:     params.Duration,
		OutputFormat: params.OutputFormat,
		Model:        params.Model,
		Type:         domain.KindAudioToAudio,
		Strength:     &strength,
	})
}

// GenerateInpaint handles audio-inpainting requests (multipart).
func (a *App) GenerateInpaint(w http.ResponseWriter, r *http.Request) {
	file, header, ok := a.parseMultipart(w, r)
	if file != nil {
		defer file.Close()
	}
	if !ok {
		return
	}

	params, err := validate.Inpaint(a.formFields(r), file != nil)
	if err != nil {
		a.fail(w, err)
		return
	}
	if err := validate.SourceAudio(header.Header.Get("Content-Type"), header.Size); err != nil {
		a.fail(w, err)
		return
	}
	if params.Model == "" {
		params.Model = a.Config.StabilityModel
	}

	handle, err := a.Service.Stage(file, header.Filename)
	if err != nil {
		a.fail(w, err)
		return
	}
	result, err := a.Service.Inpaint(r.Context(), params, handle)
	if err != nil {
		a.fail(w, err)
		return
	}
	maskStart, maskEnd := params.MaskStart, params.MaskEnd
	seed, steps := params.Seed, params.Steps
	a.json(w, http.StatusOK, generateResponse{
		Success:      true,
		Filename:     result.Filename,
		URL:          result.URL,
		Prompt:       params.Prompt,
		Duration:     params.Duration,
		OutputFormat: params.OutputFormat,
		Model:        params.Model,
		Type:         domain.KindInpaint,
		MaskStart:    &maskStart,
		MaskEnd:      &maskEnd,
		Seed:         &seed,
		Steps:        &steps,
	})
}

// Files lists every persisted artifact, newest first.
func (a *App) Files(w http.ResponseWriter, r *http.Request) {
	items, err := a.Store.List()
	if err != nil {
		a.fail(w, err)
		return
	}
	for i := range items {
		items[i].URL = "/download/" + items[i].Filename
	}
	a.json(w, http.StatusOK, map[string]any{"files": items})
}

// Download streams a persisted artifact for playback or saving.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	f, err := a.Store.Open(filename)
	if err != nil {
		a.fail(w, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", storage.ContentType(filename))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// parseMultipart reads the multipart body and extracts the optional source
// clip. A nil file simply means the part was absent; the validator reports
// it in field order so the prompt check still wins.
func (a *App) parseMultipart(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, nil, true
	}
	return file, header, true
}

func (a *App) formFields(r *http.Request) validate.RawFields {
	return validate.RawFields{
		Prompt:       r.FormValue("prompt"),
		Duration:     r.FormValue("duration"),
		OutputFormat: r.FormValue("output_format"),
		Strength:     r.FormValue("strength"),
		MaskStart:    r.FormValue("mask_start"),
		MaskEnd:      r.FormValue("mask_end"),
		Seed:         r.FormValue("seed"),
		Steps:        r.FormValue("steps"),
		Model:        r.FormValue("model"),
	}
}
