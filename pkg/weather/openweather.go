package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/voxaura/voxaura/pkg/provider"
)

const openWeatherName = "openweathermap"

// OpenWeather is the fallback weather vendor (openweathermap.org).
type OpenWeather struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ provider.Adapter[string, Report] = &OpenWeather{}

type OpenWeatherOption func(*OpenWeather)

func WithOpenWeatherBaseURL(u string) OpenWeatherOption {
	return func(o *OpenWeather) { o.baseURL = u }
}

func NewOpenWeather(apiKey string, timeout time.Duration, opts ...OpenWeatherOption) *OpenWeather {
	o := &OpenWeather{
		apiKey:     apiKey,
		baseURL:    "https://api.openweathermap.org/data/2.5",
		httpClient: provider.NewHTTPClient(timeout),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenWeather) Name() string { return openWeatherName }

type openWeatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility int `json:"visibility"`
}

func (o *OpenWeather) Call(ctx context.Context, city string) (Report, error) {
	if o.apiKey == "" {
		return Report{}, provider.Errorf(openWeatherName, provider.AuthError, "api key not configured")
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		o.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return Report{}, provider.NewError(openWeatherName, provider.NetworkError, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Report{}, provider.NewError(openWeatherName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return Report{}, errors.WithStack(ErrCityNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Report{}, provider.NewError(openWeatherName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Report{}, provider.NewError(openWeatherName, provider.MalformedResponse, err)
	}
	if result.Name == "" || len(result.Weather) == 0 {
		return Report{}, provider.Errorf(openWeatherName, provider.MalformedResponse, "incomplete response")
	}

	return Report{
		City:         result.Name,
		Country:      result.Sys.Country,
		Description:  capitalize(result.Weather[0].Description),
		TemperatureC: result.Main.Temp,
		FeelsLikeC:   result.Main.FeelsLike,
		Humidity:     result.Main.Humidity,
		WindKph:      result.Wind.Speed * 3.6,
		VisibilityKm: float64(result.Visibility) / 1000,
		Source:       "OpenWeatherMap",
	}, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
