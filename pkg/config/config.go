// Package config loads the YAML configuration file. Values support ${VAR}
// environment expansion, and provider API keys fall back to the conventional
// environment variables when the file leaves them empty.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/voxaura/voxaura/pkg/events"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Providers ProvidersConfig `yaml:"providers"`
	Events    events.Settings `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AudioDir string `yaml:"audio_dir"`
}

type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

type ProvidersConfig struct {
	// Timeout bounds every outbound vendor call, as a duration string.
	Timeout string `yaml:"timeout"`

	AssemblyAI  AssemblyAIConfig  `yaml:"assemblyai"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Gemini      GeminiConfig      `yaml:"gemini"`
	Anthropic   AnthropicConfig   `yaml:"anthropic"`
	Murf        MurfConfig        `yaml:"murf"`
	WeatherAPI  WeatherAPIConfig  `yaml:"weatherapi"`
	OpenWeather OpenWeatherConfig `yaml:"openweather"`
}

type AssemblyAIConfig struct {
	APIKey string `yaml:"api_key"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type MurfConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
}

type WeatherAPIConfig struct {
	APIKey string `yaml:"api_key"`
}

type OpenWeatherConfig struct {
	APIKey string `yaml:"api_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file. An empty path yields a config built
// purely from defaults and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config")
		}
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.AudioDir == "" {
		c.Server.AudioDir = "./audio"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "./voxaura.db"
	}
	if c.Providers.Timeout == "" {
		c.Providers.Timeout = "30s"
	}
	envDefault(&c.Providers.AssemblyAI.APIKey, "ASSEMBLYAI_API_KEY")
	envDefault(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	envDefault(&c.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	envDefault(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	envDefault(&c.Providers.Murf.APIKey, "MURF_API_KEY")
	envDefault(&c.Providers.WeatherAPI.APIKey, "WEATHER_API_KEY")
	envDefault(&c.Providers.OpenWeather.APIKey, "OPENWEATHER_API_KEY")
	if c.Providers.OpenAI.Language == "" {
		c.Providers.OpenAI.Language = "en"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func envDefault(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

// ProviderTimeout parses the configured vendor-call timeout, falling back to
// 30s on a bad value.
func (c *Config) ProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.Providers.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
