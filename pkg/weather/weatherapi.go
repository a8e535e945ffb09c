package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/voxaura/voxaura/pkg/provider"
)

const weatherAPIName = "weatherapi"

// WeatherAPI is the primary weather vendor (weatherapi.com).
type WeatherAPI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ provider.Adapter[string, Report] = &WeatherAPI{}

type WeatherAPIOption func(*WeatherAPI)

func WithWeatherAPIBaseURL(u string) WeatherAPIOption {
	return func(w *WeatherAPI) { w.baseURL = u }
}

func NewWeatherAPI(apiKey string, timeout time.Duration, opts ...WeatherAPIOption) *WeatherAPI {
	w := &WeatherAPI{
		apiKey:     apiKey,
		baseURL:    "https://api.weatherapi.com/v1",
		httpClient: provider.NewHTTPClient(timeout),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WeatherAPI) Name() string { return weatherAPIName }

type weatherAPIResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		FeelsLike float64 `json:"feelslike_c"`
		Humidity  int     `json:"humidity"`
		WindKph   float64 `json:"wind_kph"`
		VisKm     float64 `json:"vis_km"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

func (w *WeatherAPI) Call(ctx context.Context, city string) (Report, error) {
	if w.apiKey == "" {
		return Report{}, provider.Errorf(weatherAPIName, provider.AuthError, "api key not configured")
	}

	q := url.Values{}
	q.Set("key", w.apiKey)
	q.Set("q", city)
	q.Set("aqi", "no")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.baseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return Report{}, provider.NewError(weatherAPIName, provider.NetworkError, err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Report{}, provider.NewError(weatherAPIName, provider.ClassifyTransportError(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 400 means the geocoder did not recognize the city
	if resp.StatusCode == http.StatusBadRequest {
		return Report{}, errors.WithStack(ErrCityNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Report{}, provider.NewError(weatherAPIName, provider.ClassifyStatus(resp.StatusCode),
			errors.Errorf("API error %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var result weatherAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Report{}, provider.NewError(weatherAPIName, provider.MalformedResponse, err)
	}
	if result.Location.Name == "" {
		return Report{}, provider.Errorf(weatherAPIName, provider.MalformedResponse, "response has no location")
	}

	return Report{
		City:         result.Location.Name,
		Region:       result.Location.Region,
		Country:      result.Location.Country,
		Description:  result.Current.Condition.Text,
		TemperatureC: result.Current.TempC,
		FeelsLikeC:   result.Current.FeelsLike,
		Humidity:     result.Current.Humidity,
		WindKph:      result.Current.WindKph,
		VisibilityKm: result.Current.VisKm,
		Source:       "WeatherAPI.com",
	}, nil
}
