package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

const geminiName = "gemini"

// Gemini is the primary reply generator, calling the Generative Language
// generateContent endpoint.
type Gemini struct {
	apiKey      string
	baseURL     string
	model       string
	tokenBudget int
	httpClient  *http.Client
}

var _ provider.Adapter[pipeline.Prompt, string] = &Gemini{}

type GeminiOption func(*Gemini)

func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = u }
}

func WithGeminiTokenBudget(budget int) GeminiOption {
	return func(g *Gemini) { g.tokenBudget = budget }
}

func NewGemini(apiKey, model string, timeout time.Duration, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:      apiKey,
		baseURL:     "https://generativelanguage.googleapis.com/v1beta",
		model:       model,
		tokenBudget: DefaultHistoryTokenBudget,
		httpClient:  provider.NewHTTPClient(timeout),
	}
	if g.model == "" {
		g.model = "gemini-2.5-flash"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gemini) Name() string { return geminiName }

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Call(ctx context.Context, in pipeline.Prompt) (string, error) {
	if g.apiKey == "" {
		return "", provider.Errorf(geminiName, provider.AuthError, "api key not configured")
	}

	prompt := buildContext(in.History, in.UserText, g.tokenBudget)
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", provider.NewError(geminiName, provider.NetworkError, err)
	}

	url := g.baseURL + "/models/" + g.model + ":generateContent?key=" + g.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", provider.NewError(geminiName, provider.NetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", provider.NewError(geminiName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", provider.NewError(geminiName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", provider.NewError(geminiName, provider.MalformedResponse, err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", provider.Errorf(geminiName, provider.MalformedResponse, "response has no candidates")
	}
	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", provider.Errorf(geminiName, provider.MalformedResponse, "empty response text")
	}
	return text, nil
}
