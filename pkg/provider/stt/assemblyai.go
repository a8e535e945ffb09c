// Package stt contains speech-to-text provider adapters.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

const assemblyAIName = "assemblyai"

// AssemblyAI transcribes via the AssemblyAI REST API: upload the audio, start
// a transcript job, poll until it completes.
type AssemblyAI struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxPolls     int
}

var _ provider.Adapter[pipeline.AudioInput, string] = &AssemblyAI{}

type AssemblyAIOption func(*AssemblyAI)

// WithAssemblyAIBaseURL points the adapter at a different endpoint, used by
// tests.
func WithAssemblyAIBaseURL(u string) AssemblyAIOption {
	return func(a *AssemblyAI) { a.baseURL = u }
}

func WithAssemblyAIPolling(interval time.Duration, maxPolls int) AssemblyAIOption {
	return func(a *AssemblyAI) {
		a.pollInterval = interval
		a.maxPolls = maxPolls
	}
}

func NewAssemblyAI(apiKey string, timeout time.Duration, opts ...AssemblyAIOption) *AssemblyAI {
	a := &AssemblyAI{
		apiKey:       apiKey,
		baseURL:      "https://api.assemblyai.com",
		httpClient:   provider.NewHTTPClient(timeout),
		pollInterval: 500 * time.Millisecond,
		maxPolls:     60,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AssemblyAI) Name() string { return assemblyAIName }

type assemblyUploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type assemblyTranscript struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

func (a *AssemblyAI) Call(ctx context.Context, in pipeline.AudioInput) (string, error) {
	if a.apiKey == "" {
		return "", provider.Errorf(assemblyAIName, provider.AuthError, "api key not configured")
	}
	if len(in.Data) == 0 {
		return "", provider.Errorf(assemblyAIName, provider.MalformedResponse, "empty audio input")
	}

	var upload assemblyUploadResponse
	if err := a.doJSON(ctx, http.MethodPost, "/v2/upload", in.Data, "application/octet-stream", &upload); err != nil {
		return "", err
	}
	if upload.UploadURL == "" {
		return "", provider.Errorf(assemblyAIName, provider.MalformedResponse, "upload response missing upload_url")
	}

	reqBody, _ := json.Marshal(map[string]string{"audio_url": upload.UploadURL})
	var job assemblyTranscript
	if err := a.doJSON(ctx, http.MethodPost, "/v2/transcript", reqBody, "application/json", &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", provider.Errorf(assemblyAIName, provider.MalformedResponse, "transcript response missing id")
	}

	for i := 0; i < a.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", provider.NewError(assemblyAIName, provider.Timeout, ctx.Err())
		case <-time.After(a.pollInterval):
		}

		var status assemblyTranscript
		if err := a.doJSON(ctx, http.MethodGet, "/v2/transcript/"+job.ID, nil, "", &status); err != nil {
			return "", err
		}
		switch status.Status {
		case "completed":
			log.Debug().Str("transcript_id", job.ID).Int("chars", len(status.Text)).Msg("assemblyai transcription complete")
			return status.Text, nil
		case "error":
			return "", provider.Errorf(assemblyAIName, provider.MalformedResponse, "transcription failed: %s", status.Error)
		}
	}
	return "", provider.Errorf(assemblyAIName, provider.Timeout, "transcript %s not ready after %d polls", job.ID, a.maxPolls)
}

func (a *AssemblyAI) doJSON(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return provider.NewError(assemblyAIName, provider.NetworkError, err)
	}
	req.Header.Set("Authorization", a.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return provider.NewError(assemblyAIName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return provider.NewError(assemblyAIName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return provider.NewError(assemblyAIName, provider.MalformedResponse, err)
	}
	return nil
}
