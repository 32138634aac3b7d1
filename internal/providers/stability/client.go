// Package stability calls the Stability AI Stable Audio 2 endpoints. One
// request is attempted per call; generation is billed and non-idempotent,
// so failures surface to the caller instead of being retried.
package stability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const (
	textToAudioPath  = "/v2beta/audio/stable-audio-2/text-to-audio"
	audioToAudioPath = "/v2beta/audio/stable-audio-2/audio-to-audio"
	inpaintPath      = "/v2beta/audio/stable-audio-2/inpaint"

	defaultTextTimeout  = 60 * time.Second
	defaultAudioTimeout = 120 * time.Second
)

// Options configures the Stability client.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	HTTPClient   *http.Client
	Logger       zerolog.Logger
	TextTimeout  time.Duration
	AudioTimeout time.Duration
}

// Client performs multipart HTTP calls against the Stable Audio API.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	logger       zerolog.Logger
	textTimeout  time.Duration
	audioTimeout time.Duration
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "stable-audio-2.5"
	}
	textTimeout := opts.TextTimeout
	if textTimeout <= 0 {
		textTimeout = defaultTextTimeout
	}
	audioTimeout := opts.AudioTimeout
	if audioTimeout <= 0 {
		audioTimeout = defaultAudioTimeout
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		httpClient:   httpClient,
		logger:       opts.Logger,
		textTimeout:  textTimeout,
		audioTimeout: audioTimeout,
	}
}

// Model returns the configured default model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// TextToAudio synthesizes audio from a prompt and returns the raw bytes.
func (c *Client) TextToAudio(ctx context.Context, p domain.TextToAudioParams) ([]byte, error) {
	fields := c.baseFields(p.Prompt, p.Duration, p.OutputFormat, p.Model)
	return c.call(ctx, textToAudioPath, c.textTimeout, fields, "", "")
}

// AudioToAudio transforms the staged source clip at sourcePath, guided by
// the prompt and strength.
func (c *Client) AudioToAudio(ctx context.Context, p domain.AudioToAudioParams, sourcePath, sourceName string) ([]byte, error) {
	fields := c.baseFields(p.Prompt, p.Duration, p.OutputFormat, p.Model)
	fields["strength"] = strconv.FormatFloat(p.Strength, 'f', -1, 64)
	return c.call(ctx, audioToAudioPath, c.audioTimeout, fields, sourcePath, sourceName)
}

// Inpaint regenerates the masked interval of the staged source clip.
func (c *Client) Inpaint(ctx context.Context, p domain.InpaintParams, sourcePath, sourceName string) ([]byte, error) {
	fields := c.baseFields(p.Prompt, p.Duration, p.OutputFormat, p.Model)
	fields["mask_start"] = strconv.FormatFloat(p.MaskStart, 'f', -1, 64)
	fields["mask_end"] = strconv.FormatFloat(p.MaskEnd, 'f', -1, 64)
	fields["seed"] = strconv.FormatInt(p.Seed, 10)
	fields["steps"] = strconv.Itoa(p.Steps)
	return c.call(ctx, inpaintPath, c.audioTimeout, fields, sourcePath, sourceName)
}

func (c *Client) baseFields(prompt string, duration int, format, model string) map[string]string {
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	return map[string]string{
		"prompt":        prompt,
		"output_format": format,
		"duration":      strconv.Itoa(duration),
		"model":         model,
	}
}

// call performs one multipart POST. The timeout context is detached from
// the caller's cancellation: an in-flight generation is allowed to finish
// or time out on its own schedule even if the client disconnects.
func (c *Client) call(ctx context.Context, path string, timeout time.Duration, fields map[string]string, sourcePath, sourceName string) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, domain.ErrMissingAPIKey
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("stability: encode field %s: %w", name, err)
		}
	}
	if sourcePath != "" {
		if err := attachAudio(writer, sourcePath, sourceName); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("stability: finish multipart body: %w", err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "audio/*")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("stability: %s: %w", path, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("stability: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("stability: %s: %w", path, domain.ErrTimeout)
		}
		return nil, fmt.Errorf("stability: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("stability: provider error")
		return nil, &domain.ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	c.logger.Debug().
		Str("path", path).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(started)).
		Msg("stability: generation complete")
	return raw, nil
}

func attachAudio(writer *multipart.Writer, sourcePath, sourceName string) error {
	if sourceName == "" {
		sourceName = "audio"
	}
	part, err := writer.CreateFormFile("audio", sourceName)
	if err != nil {
		return fmt.Errorf("stability: create audio part: %w", err)
	}
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("stability: open staged audio: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("stability: copy staged audio: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
