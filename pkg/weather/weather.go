// Package weather implements the weather lookup skill on top of the provider
// fallback machinery: WeatherAPI.com first, OpenWeatherMap second.
package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/provider"
)

// ErrCityNotFound is returned when the vendor recognizes the request but not
// the city. Callers map it to a 404 rather than a provider failure.
var ErrCityNotFound = errors.New("city not found")

// Report is the normalized current-conditions shape shared by both vendors.
type Report struct {
	City         string  `json:"city"`
	Region       string  `json:"region,omitempty"`
	Country      string  `json:"country"`
	Description  string  `json:"description"`
	TemperatureC float64 `json:"temperature_c"`
	FeelsLikeC   float64 `json:"feels_like_c"`
	Humidity     int     `json:"humidity"`
	WindKph      float64 `json:"wind_kph"`
	VisibilityKm float64 `json:"visibility_km"`
	Source       string  `json:"source"`
}

// Summary renders the report as a spoken-style sentence.
func (r Report) Summary() string {
	parts := []string{r.City}
	if r.Region != "" && r.Region != r.City {
		parts = append(parts, r.Region)
	}
	if r.Country != "" {
		parts = append(parts, r.Country)
	}
	return fmt.Sprintf("The weather in %s is %s with a temperature of %.1f°C (feels like %.1f°C) and humidity at %d%%.",
		strings.Join(parts, ", "), strings.ToLower(r.Description), r.TemperatureC, r.FeelsLikeC, r.Humidity)
}

// Service walks the vendor chain in order and returns the first report.
type Service struct {
	adapters []provider.Adapter[string, Report]
}

func NewService(adapters ...provider.Adapter[string, Report]) *Service {
	return &Service{adapters: adapters}
}

// Configured reports whether at least one vendor adapter is wired.
func (s *Service) Configured() bool {
	return len(s.adapters) > 0
}

// Current looks up current conditions for a city. Unlike the voice pipeline
// there is no canned fallback payload: when every vendor fails the caller gets
// the error, since an invented forecast is worse than none.
func (s *Service) Current(ctx context.Context, city string) (Report, error) {
	city = CleanCity(city)
	if city == "" {
		return Report{}, errors.New("city is required")
	}
	if len(s.adapters) == 0 {
		return Report{}, errors.New("no weather provider configured")
	}

	notFound := false
	var lastErr error
	for _, adapter := range s.adapters {
		report, err := adapter.Call(ctx, city)
		if err == nil {
			return report, nil
		}
		if errors.Is(err, ErrCityNotFound) {
			notFound = true
		}
		log.Warn().Err(err).
			Str("provider", adapter.Name()).
			Str("city", city).
			Str("error_kind", string(provider.KindOf(err))).
			Msg("weather lookup failed, trying next in chain")
		lastErr = err
	}
	if notFound {
		return Report{}, errors.Wrap(ErrCityNotFound, city)
	}
	return Report{}, lastErr
}

// filler words the voice front-end tends to leave attached to the city name
var fillerWords = map[string]struct{}{
	"weather": {}, "temperature": {}, "forecast": {}, "city": {}, "and": {}, "in": {},
}

// CleanCity normalizes a spoken or typed city query into something the vendor
// geocoders accept.
func CleanCity(city string) string {
	var kept []string
	for _, word := range strings.Fields(strings.TrimSpace(city)) {
		if _, filler := fillerWords[strings.ToLower(word)]; filler {
			continue
		}
		kept = append(kept, word)
	}
	return strings.Join(kept, " ")
}
