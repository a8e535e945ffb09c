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
	"github.com/voxaura/voxaura/pkg/session"
)

const claudeName = "claude"

// Claude is the secondary reply generator, calling the Anthropic messages
// endpoint. Unlike Gemini it takes history as structured messages rather than
// one flattened prompt.
type Claude struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	tokenBudget int
	httpClient  *http.Client
}

var _ provider.Adapter[pipeline.Prompt, string] = &Claude{}

type ClaudeOption func(*Claude)

func WithClaudeBaseURL(u string) ClaudeOption {
	return func(c *Claude) { c.baseURL = u }
}

func NewClaude(apiKey, model string, timeout time.Duration, opts ...ClaudeOption) *Claude {
	c := &Claude{
		apiKey:      apiKey,
		baseURL:     "https://api.anthropic.com/v1",
		model:       model,
		maxTokens:   1024,
		tokenBudget: DefaultHistoryTokenBudget,
		httpClient:  provider.NewHTTPClient(timeout),
	}
	if c.model == "" {
		c.model = "claude-3-5-haiku-latest"
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Claude) Name() string { return claudeName }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Claude) Call(ctx context.Context, in pipeline.Prompt) (string, error) {
	if c.apiKey == "" {
		return "", provider.Errorf(claudeName, provider.AuthError, "api key not configured")
	}

	messages := []claudeMessage{}
	for _, turn := range historyWindow(in.History, c.tokenBudget) {
		role := "user"
		if turn.Role == session.RoleAssistant {
			role = "assistant"
		}
		// the messages API requires strict user/assistant alternation;
		// merge consecutive same-role turns
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n" + turn.Text
			continue
		}
		messages = append(messages, claudeMessage{Role: role, Content: turn.Text})
	}
	if n := len(messages); n > 0 && messages[n-1].Role == "user" {
		messages[n-1].Content += "\n" + in.UserText
	} else {
		messages = append(messages, claudeMessage{Role: "user", Content: in.UserText})
	}

	body, err := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPreamble,
		Messages:  messages,
	})
	if err != nil {
		return "", provider.NewError(claudeName, provider.NetworkError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", provider.NewError(claudeName, provider.NetworkError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", provider.NewError(claudeName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", provider.NewError(claudeName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", provider.NewError(claudeName, provider.MalformedResponse, err)
	}
	if len(result.Content) == 0 {
		return "", provider.Errorf(claudeName, provider.MalformedResponse, "response has no content")
	}
	text := strings.TrimSpace(result.Content[0].Text)
	if text == "" {
		return "", provider.Errorf(claudeName, provider.MalformedResponse, "empty response text")
	}
	return text, nil
}
