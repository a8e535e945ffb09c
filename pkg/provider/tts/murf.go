// Package tts contains speech-synthesis provider adapters. Adapters always
// return raw audio bytes so callers can persist and serve them directly.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

const murfName = "murf"

// DefaultVoiceID is the voice used when none is configured.
const DefaultVoiceID = "en-US-natalie"

// Murf is the primary speech synthesizer. Its API returns a URL to a hosted
// audio file, so a successful call is two round trips: generate, then fetch.
type Murf struct {
	apiKey     string
	baseURL    string
	voiceID    string
	httpClient *http.Client
}

var _ provider.Adapter[string, pipeline.Audio] = &Murf{}

type MurfOption func(*Murf)

func WithMurfBaseURL(u string) MurfOption {
	return func(m *Murf) { m.baseURL = u }
}

func NewMurf(apiKey, voiceID string, timeout time.Duration, opts ...MurfOption) *Murf {
	m := &Murf{
		apiKey:     apiKey,
		baseURL:    "https://api.murf.ai/v1",
		voiceID:    voiceID,
		httpClient: provider.NewHTTPClient(timeout),
	}
	if m.voiceID == "" {
		m.voiceID = DefaultVoiceID
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Murf) Name() string { return murfName }

type murfRequest struct {
	Text       string  `json:"text"`
	VoiceID    string  `json:"voiceId"`
	Format     string  `json:"format"`
	SampleRate float64 `json:"sampleRate"`
}

type murfResponse struct {
	AudioFile string `json:"audioFile"`
	URL       string `json:"url"`
}

func (m *Murf) Call(ctx context.Context, text string) (pipeline.Audio, error) {
	if m.apiKey == "" {
		return pipeline.Audio{}, provider.Errorf(murfName, provider.AuthError, "api key not configured")
	}

	body, err := json.Marshal(murfRequest{
		Text:       text,
		VoiceID:    m.voiceID,
		Format:     "MP3",
		SampleRate: 44100,
	})
	if err != nil {
		return pipeline.Audio{}, provider.NewError(murfName, provider.NetworkError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/speech/generate", bytes.NewReader(body))
	if err != nil {
		return pipeline.Audio{}, provider.NewError(murfName, provider.NetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return pipeline.Audio{}, provider.NewError(murfName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return pipeline.Audio{}, provider.NewError(murfName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result murfResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.Audio{}, provider.NewError(murfName, provider.MalformedResponse, err)
	}
	audioURL := result.AudioFile
	if audioURL == "" {
		audioURL = result.URL
	}
	if audioURL == "" {
		return pipeline.Audio{}, provider.Errorf(murfName, provider.MalformedResponse, "no audio URL in response")
	}

	data, err := m.download(ctx, audioURL)
	if err != nil {
		return pipeline.Audio{}, err
	}
	return pipeline.Audio{Data: data, Format: "mp3"}, nil
}

func (m *Murf) download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, provider.NewError(murfName, provider.NetworkError, err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewError(murfName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.Errorf(murfName, provider.NetworkError,
			"audio download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.NewError(murfName, provider.NetworkError, err)
	}
	if len(data) == 0 {
		return nil, provider.Errorf(murfName, provider.MalformedResponse, "empty audio file")
	}
	return data, nil
}
