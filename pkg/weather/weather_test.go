package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/voxaura/voxaura/pkg/provider"
)

func newWeatherAPITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/current.json", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		if r.URL.Query().Get("q") != "London" {
			http.Error(w, `{"error":{"code":1006}}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"location": map[string]string{"name": "London", "region": "City of London, Greater London", "country": "United Kingdom"},
			"current": map[string]any{
				"temp_c": 14.5, "feelslike_c": 13.0, "humidity": 72,
				"wind_kph": 11.2, "vis_km": 10.0,
				"condition": map[string]string{"text": "Partly cloudy"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeatherAPICurrent(t *testing.T) {
	srv := newWeatherAPITestServer(t)
	w := NewWeatherAPI("test-key", time.Second, WithWeatherAPIBaseURL(srv.URL))

	report, err := w.Call(context.Background(), "London")
	require.NoError(t, err)
	require.Equal(t, "London", report.City)
	require.Equal(t, "United Kingdom", report.Country)
	require.Equal(t, 14.5, report.TemperatureC)
	require.Equal(t, 72, report.Humidity)
	require.Equal(t, "WeatherAPI.com", report.Source)
}

func TestWeatherAPIUnknownCity(t *testing.T) {
	srv := newWeatherAPITestServer(t)
	w := NewWeatherAPI("test-key", time.Second, WithWeatherAPIBaseURL(srv.URL))

	_, err := w.Call(context.Background(), "Atlantis")
	require.ErrorIs(t, err, ErrCityNotFound)
}

func TestWeatherAPIAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWeatherAPI("test-key", time.Second, WithWeatherAPIBaseURL(srv.URL))
	_, err := w.Call(context.Background(), "London")
	require.Equal(t, provider.AuthError, provider.KindOf(err))
}

func TestOpenWeatherCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/weather", r.URL.Path)
		require.Equal(t, "test-key", r.URL.Query().Get("appid"))
		require.Equal(t, "metric", r.URL.Query().Get("units"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "Paris",
			"sys":  map[string]string{"country": "FR"},
			"main": map[string]any{"temp": 18.2, "feels_like": 17.9, "humidity": 60},
			"weather": []map[string]string{
				{"description": "scattered clouds"},
			},
			"wind":       map[string]float64{"speed": 5.0},
			"visibility": 10000,
		})
	}))
	defer srv.Close()

	o := NewOpenWeather("test-key", time.Second, WithOpenWeatherBaseURL(srv.URL))
	report, err := o.Call(context.Background(), "Paris")
	require.NoError(t, err)
	require.Equal(t, "Paris", report.City)
	require.Equal(t, "FR", report.Country)
	require.Equal(t, "Scattered clouds", report.Description)
	require.InDelta(t, 18.0, report.WindKph, 0.01)
	require.Equal(t, 10.0, report.VisibilityKm)
}

func TestServiceFallsBackToSecondary(t *testing.T) {
	primary := provider.Func[string, Report]{
		AdapterName: "primary",
		Fn: func(ctx context.Context, city string) (Report, error) {
			return Report{}, provider.Errorf("primary", provider.QuotaExceeded, "rate limited")
		},
	}
	secondary := provider.Func[string, Report]{
		AdapterName: "secondary",
		Fn: func(ctx context.Context, city string) (Report, error) {
			return Report{City: city, Country: "GB", Description: "Sunny"}, nil
		},
	}

	svc := NewService(primary, secondary)
	report, err := svc.Current(context.Background(), "London")
	require.NoError(t, err)
	require.Equal(t, "London", report.City)
}

func TestServiceAllProvidersDown(t *testing.T) {
	failing := provider.Func[string, Report]{
		AdapterName: "failing",
		Fn: func(ctx context.Context, city string) (Report, error) {
			return Report{}, provider.Errorf("failing", provider.NetworkError, "unreachable")
		},
	}

	svc := NewService(failing, failing)
	_, err := svc.Current(context.Background(), "London")
	require.Error(t, err)
	require.Equal(t, provider.NetworkError, provider.KindOf(err))
}

func TestServiceCityNotFoundWinsOverProviderErrors(t *testing.T) {
	notFound := provider.Func[string, Report]{
		AdapterName: "notfound",
		Fn: func(ctx context.Context, city string) (Report, error) {
			return Report{}, errors.WithStack(ErrCityNotFound)
		},
	}
	failing := provider.Func[string, Report]{
		AdapterName: "failing",
		Fn: func(ctx context.Context, city string) (Report, error) {
			return Report{}, provider.Errorf("failing", provider.NetworkError, "unreachable")
		},
	}

	svc := NewService(notFound, failing)
	_, err := svc.Current(context.Background(), "Atlantis")
	require.ErrorIs(t, err, ErrCityNotFound)
}

func TestServiceRejectsEmptyCity(t *testing.T) {
	svc := NewService()
	_, err := svc.Current(context.Background(), "   ")
	require.Error(t, err)
}

func TestCleanCity(t *testing.T) {
	cases := map[string]string{
		"London":                 "London",
		"  weather in Paris ":    "Paris",
		"New York city forecast": "New York",
		"temperature and Tokyo":  "Tokyo",
	}
	for in, want := range cases {
		require.Equal(t, want, CleanCity(in), "input %q", in)
	}
}

func TestReportSummary(t *testing.T) {
	r := Report{
		City: "London", Region: "Greater London", Country: "United Kingdom",
		Description: "Partly cloudy", TemperatureC: 14.5, FeelsLikeC: 13.0, Humidity: 72,
	}
	s := r.Summary()
	require.Contains(t, s, "London, Greater London, United Kingdom")
	require.Contains(t, s, "partly cloudy")
	require.Contains(t, s, "14.5°C")
	require.Contains(t, s, "72%")
}
