package tts

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
)

const gtranslateName = "gtranslate"

// the unofficial endpoint caps the text per request
const gtranslateMaxChars = 200

// GTranslate is the secondary synthesizer, using the public Google Translate
// speech endpoint. It needs no API key, which is exactly why it makes a good
// fallback when the paid provider is down.
type GTranslate struct {
	baseURL    string
	lang       string
	httpClient *http.Client
}

var _ provider.Adapter[string, pipeline.Audio] = &GTranslate{}

type GTranslateOption func(*GTranslate)

func WithGTranslateBaseURL(u string) GTranslateOption {
	return func(g *GTranslate) { g.baseURL = u }
}

func NewGTranslate(lang string, timeout time.Duration, opts ...GTranslateOption) *GTranslate {
	g := &GTranslate{
		baseURL:    "https://translate.google.com",
		lang:       lang,
		httpClient: provider.NewHTTPClient(timeout),
	}
	if g.lang == "" {
		g.lang = "en"
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GTranslate) Name() string { return gtranslateName }

func (g *GTranslate) Call(ctx context.Context, text string) (pipeline.Audio, error) {
	if runes := []rune(text); len(runes) > gtranslateMaxChars {
		text = string(runes[:gtranslateMaxChars])
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.lang)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return pipeline.Audio{}, provider.NewError(gtranslateName, provider.NetworkError, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return pipeline.Audio{}, provider.NewError(gtranslateName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return pipeline.Audio{}, provider.Errorf(gtranslateName, provider.ClassifyStatus(resp.StatusCode),
			"speech request failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.Audio{}, provider.NewError(gtranslateName, provider.NetworkError, err)
	}
	if len(data) == 0 {
		return pipeline.Audio{}, provider.Errorf(gtranslateName, provider.MalformedResponse, "empty audio response")
	}
	return pipeline.Audio{Data: data, Format: "mp3"}, nil
}
