package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

const whisperName = "whisper"

// Whisper is the secondary STT adapter, calling the OpenAI audio
// transcription endpoint with a multipart upload.
type Whisper struct {
	apiKey     string
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
}

var _ provider.Adapter[pipeline.AudioInput, string] = &Whisper{}

type WhisperOption func(*Whisper)

func WithWhisperBaseURL(u string) WhisperOption {
	return func(w *Whisper) { w.baseURL = u }
}

func NewWhisper(apiKey, language string, timeout time.Duration, opts ...WhisperOption) *Whisper {
	w := &Whisper{
		apiKey:     apiKey,
		baseURL:    "https://api.openai.com/v1",
		model:      "whisper-1",
		language:   language,
		httpClient: provider.NewHTTPClient(timeout),
	}
	if w.language == "" {
		w.language = "en"
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Whisper) Name() string { return whisperName }

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *Whisper) Call(ctx context.Context, in pipeline.AudioInput) (string, error) {
	if w.apiKey == "" {
		return "", provider.Errorf(whisperName, provider.AuthError, "api key not configured")
	}
	if len(in.Data) == 0 {
		return "", provider.Errorf(whisperName, provider.MalformedResponse, "empty audio input")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filenameFor(in.ContentType))
	if err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}
	if _, err := part.Write(in.Data); err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}
	if err := writer.WriteField("language", w.language); err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}
	if err := writer.Close(); err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", provider.NewError(whisperName, provider.NetworkError, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", provider.NewError(whisperName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", provider.NewError(whisperName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", provider.NewError(whisperName, provider.MalformedResponse, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", provider.Errorf(whisperName, provider.MalformedResponse, "empty transcription")
	}
	return result.Text, nil
}

func filenameFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return "audio.wav"
	case strings.Contains(contentType, "mp4"):
		return "audio.mp4"
	case strings.Contains(contentType, "mpeg"), strings.Contains(contentType, "mp3"):
		return "audio.mp3"
	default:
		return "audio.webm"
	}
}
