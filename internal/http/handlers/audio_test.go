package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"server/internal/audiogen"
	"server/internal/domain"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/storage"
	"server/internal/upload"
)

type fakeProvider struct {
	data    []byte
	err     error
	noCreds bool
	calls   int
}

func (f *fakeProvider) TextToAudio(context.Context, domain.TextToAudioParams) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func (f *fakeProvider) AudioToAudio(_ context.Context, _ domain.AudioToAudioParams, _, _ string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func (f *fakeProvider) Inpaint(_ context.Context, _ domain.InpaintParams, _, _ string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func (f *fakeProvider) Model() string { return "stable-audio-2.5" }

func (f *fakeProvider) HasCredentials() bool { return !f.noCreds }

type testEnv struct {
	router   http.Handler
	provider *fakeProvider
	storeDir string
	tempDir  string
}

func newTestEnv(t *testing.T, provider *fakeProvider) *testEnv {
	t.Helper()
	storeDir := t.TempDir()
	tempDir := t.TempDir()

	store, err := storage.NewStore(storeDir, zerolog.Nop())
	require.NoError(t, err)
	uploads, err := upload.NewStore(tempDir, zerolog.Nop())
	require.NoError(t, err)

	service := audiogen.NewService(provider, store, uploads, zerolog.Nop())
	cfg := &infra.Config{
		Port:           "8080",
		StabilityModel: "stable-audio-2.5",
		TempPath:       tempDir,
		AllowedOrigins: []string{"*"},
	}
	app := handlers.NewApp(service, store, cfg, zerolog.Nop())
	return &testEnv{
		router:   httpapi.NewRouter(app, zerolog.Nop()),
		provider: provider,
		storeDir: storeDir,
		tempDir:  tempDir,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&payload))
	return payload
}

func (e *testEnv) tempEntries(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	require.NoError(t, err)
	return entries
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func multipartBody(t *testing.T, fields map[string]string, audioName, audioType string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	if audioName != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="audio"; filename="`+audioName+`"`)
		header.Set("Content-Type", audioType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(audio)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestGenerateHappyPath(t *testing.T) {
	audio := bytes.Repeat([]byte{0xAB}, 512)
	env := newTestEnv(t, &fakeProvider{data: audio})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt":        "ambient pad",
		"duration":      30,
		"output_format": "wav",
	}))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(t, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := env.decode(t, rr)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "ambient pad", payload["prompt"])
	assert.EqualValues(t, 30, payload["duration"])
	assert.Equal(t, "wav", payload["output_format"])
	assert.Equal(t, "stable-audio-2.5", payload["model"])

	filename, _ := payload["filename"].(string)
	require.True(t, strings.HasPrefix(filename, "audio_"))
	require.True(t, strings.HasSuffix(filename, ".wav"))
	assert.Equal(t, "/download/"+filename, payload["url"])

	written, err := os.ReadFile(env.storeDir + "/" + filename)
	require.NoError(t, err)
	assert.Len(t, written, len(audio))

	sidecar, err := os.ReadFile(env.storeDir + "/" + strings.TrimSuffix(filename, ".wav") + ".txt")
	require.NoError(t, err)
	var meta domain.Metadata
	require.NoError(t, json.Unmarshal(sidecar, &meta))
	assert.Equal(t, 30, meta.Duration)
}

func TestGenerateRejectsMissingPrompt(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("x")})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"duration": 30,
	}))
	rr := env.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, env.provider.calls)
	payload := env.decode(t, rr)
	assert.Equal(t, "Prompt is required", payload["error"])
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{noCreds: true})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt": "pad",
	}))
	rr := env.do(t, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Zero(t, env.provider.calls)
}

func TestGeneratePassesThroughProviderStatus(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{err: &domain.ProviderError{
		StatusCode: http.StatusPaymentRequired,
		Body:       `{"errors":["insufficient credits"]}`,
	}})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt": "pad",
	}))
	rr := env.do(t, req)

	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	payload := env.decode(t, rr)
	assert.Equal(t, "API Error: 402", payload["error"])
	assert.Contains(t, payload["details"], "insufficient credits")
}

func TestGenerateTimeout(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{err: domain.ErrTimeout})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt": "pad",
	}))
	rr := env.do(t, req)

	assert.Equal(t, http.StatusRequestTimeout, rr.Code)
}

func TestGenerateA2AHappyPath(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("transformed audio")})

	body, contentType := multipartBody(t, map[string]string{
		"prompt":   "more cowbell",
		"duration": "45",
		"strength": "0.4",
	}, "cowbell.wav", "audio/wav", []byte("source clip"))
	req := httptest.NewRequest(http.MethodPost, "/generate-a2a", body)
	req.Header.Set("Content-Type", contentType)
	rr := env.do(t, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := env.decode(t, rr)
	assert.Equal(t, "audio-to-audio", payload["type"])
	assert.EqualValues(t, 0.4, payload["strength"])

	filename, _ := payload["filename"].(string)
	assert.True(t, strings.HasPrefix(filename, "a2a_"))

	assert.Empty(t, env.tempEntries(t), "staged upload must be cleaned up")
}

func TestGenerateA2ARejectsNonAudioUpload(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("x")})

	body, contentType := multipartBody(t, map[string]string{
		"prompt": "cowbell",
	}, "clip.mp4", "video/mp4", []byte("video"))
	req := httptest.NewRequest(http.MethodPost, "/generate-a2a", body)
	req.Header.Set("Content-Type", contentType)
	rr := env.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, env.provider.calls)
	assert.Empty(t, env.tempEntries(t))
}

func TestGenerateA2ARequiresAudioFile(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("x")})

	body, contentType := multipartBody(t, map[string]string{
		"prompt": "cowbell",
	}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/generate-a2a", body)
	req.Header.Set("Content-Type", contentType)
	rr := env.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	payload := env.decode(t, rr)
	assert.Equal(t, "Audio file is required", payload["error"])
}

func TestGenerateInpaintRejectsInvertedMaskBeforeProviderCall(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("x")})

	body, contentType := multipartBody(t, map[string]string{
		"prompt":     "fix the bridge",
		"mask_start": "50",
		"mask_end":   "40",
	}, "track.wav", "audio/wav", []byte("clip"))
	req := httptest.NewRequest(http.MethodPost, "/generate-inpaint", body)
	req.Header.Set("Content-Type", contentType)
	rr := env.do(t, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, env.provider.calls, "no provider call may happen for an invalid mask")
	assert.Empty(t, env.tempEntries(t))
}

func TestGenerateInpaintHappyPath(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("patched audio")})

	body, contentType := multipartBody(t, map[string]string{
		"prompt":     "fix the chorus",
		"mask_start": "30",
		"mask_end":   "60",
		"seed":       "1234",
		"steps":      "6",
	}, "track.wav", "audio/wav", []byte("clip"))
	req := httptest.NewRequest(http.MethodPost, "/generate-inpaint", body)
	req.Header.Set("Content-Type", contentType)
	rr := env.do(t, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := env.decode(t, rr)
	assert.Equal(t, "audio-inpainting", payload["type"])
	assert.EqualValues(t, 30, payload["mask_start"])
	assert.EqualValues(t, 60, payload["mask_end"])
	assert.EqualValues(t, 1234, payload["seed"])
	assert.EqualValues(t, 6, payload["steps"])
	assert.Empty(t, env.tempEntries(t))
}

func TestFilesListsGeneratedArtifacts(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("audio")})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt": "pad", "duration": 30,
	}))
	rr := env.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code)
	created := env.decode(t, rr)

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	payload := env.decode(t, rr)

	files, ok := payload["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	entry := files[0].(map[string]any)
	assert.Equal(t, created["filename"], entry["filename"])
	assert.Equal(t, created["url"], entry["url"])
	assert.Equal(t, "pad", entry["prompt"])
	assert.EqualValues(t, 30, entry["duration"])
	assert.Equal(t, "text-to-audio", entry["type"])
	assert.NotEmpty(t, entry["created"])
}

func TestFilesInfersKindWithoutSidecar(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{data: []byte("audio")})
	require.NoError(t, os.WriteFile(env.storeDir+"/a2a_1700000000000.mp3", []byte("x"), 0o644))

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	payload := env.decode(t, rr)

	files := payload["files"].([]any)
	require.Len(t, files, 1)
	entry := files[0].(map[string]any)
	assert.Equal(t, "audio-to-audio", entry["type"])
	_, hasPrompt := entry["prompt"]
	assert.False(t, hasPrompt, "sidecar-only fields must be omitted")
}

func TestDownloadRoundTrip(t *testing.T) {
	audio := []byte{0x52, 0x49, 0x46, 0x46, 0x00, 0x01}
	env := newTestEnv(t, &fakeProvider{data: audio})

	req := httptest.NewRequest(http.MethodPost, "/generate", jsonBody(t, map[string]any{
		"prompt": "pad", "output_format": "wav",
	}))
	rr := env.do(t, req)
	require.Equal(t, http.StatusOK, rr.Code)
	filename := env.decode(t, rr)["filename"].(string)

	rr = env.do(t, httptest.NewRequest(http.MethodGet, "/download/"+filename, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "audio/wav", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")

	data, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

func TestDownloadUnknownFile(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/download/audio_404.mp3", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	payload := env.decode(t, rr)
	assert.Equal(t, "File not found", payload["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeProvider{})

	rr := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	payload := env.decode(t, rr)
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, env.storeDir, payload["uploads_dir"])
}
