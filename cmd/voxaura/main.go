package main

import (
	"context"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/voxaura/voxaura/pkg/audiostore"
	"github.com/voxaura/voxaura/pkg/config"
	"github.com/voxaura/voxaura/pkg/events"
	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/provider"
	"github.com/voxaura/voxaura/pkg/provider/llm"
	"github.com/voxaura/voxaura/pkg/provider/stt"
	"github.com/voxaura/voxaura/pkg/provider/tts"
	"github.com/voxaura/voxaura/pkg/session"
	"github.com/voxaura/voxaura/pkg/weather"
	"github.com/voxaura/voxaura/pkg/webserver"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "voxaura",
		Short: "VoxAura voice assistant server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			setupLogging(cfg.Log)
			return serve(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" && isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	sessions, err := newSessionStore(cfg.Store)
	if err != nil {
		return err
	}

	audio, err := audiostore.New(cfg.Server.AudioDir)
	if err != nil {
		return err
	}

	bus, err := events.NewBus(cfg.Events)
	if err != nil {
		return errors.Wrap(err, "creating event bus")
	}
	defer func() { _ = bus.Close() }()

	pipe := buildPipeline(cfg, bus)

	srv, err := webserver.New(ctx, webserver.Options{
		Addr:     cfg.Server.Addr,
		Pipeline: pipe,
		Sessions: sessions,
		Audio:    audio,
		Weather:  buildWeather(cfg),
		Bus:      bus,
		Status:   configStatus(cfg),
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func newSessionStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		dsn, err := session.SQLiteDSNForFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		store, err := session.NewSQLiteStore(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "opening sqlite session store")
		}
		log.Info().Str("path", cfg.Path).Msg("using sqlite session store")
		return store, nil
	case "memory", "":
		return session.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildPipeline(cfg *config.Config, bus *events.Bus) *pipeline.Pipeline {
	timeout := cfg.ProviderTimeout()

	var sttAdapters []provider.Adapter[pipeline.AudioInput, string]
	if cfg.Providers.AssemblyAI.APIKey != "" {
		sttAdapters = append(sttAdapters, stt.NewAssemblyAI(cfg.Providers.AssemblyAI.APIKey, timeout))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		sttAdapters = append(sttAdapters,
			stt.NewWhisper(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Language, timeout))
	}

	var llmAdapters []provider.Adapter[pipeline.Prompt, string]
	if cfg.Providers.Gemini.APIKey != "" {
		llmAdapters = append(llmAdapters,
			llm.NewGemini(cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model, timeout))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		llmAdapters = append(llmAdapters,
			llm.NewClaude(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model, timeout))
	}

	ttsAdapters := []provider.Adapter[string, pipeline.Audio]{}
	if cfg.Providers.Murf.APIKey != "" {
		ttsAdapters = append(ttsAdapters,
			tts.NewMurf(cfg.Providers.Murf.APIKey, cfg.Providers.Murf.VoiceID, timeout))
	}
	// keyless, always available as the last vendor in the chain
	ttsAdapters = append(ttsAdapters, tts.NewGTranslate("en", timeout))

	return &pipeline.Pipeline{
		STT: &pipeline.Stage[pipeline.AudioInput, string]{
			Name:     pipeline.StageTranscribe,
			Adapters: sttAdapters,
			Fallback: "I'm having trouble with speech recognition right now. Please try typing your message instead.",
		},
		LLM: &pipeline.Stage[pipeline.Prompt, string]{
			Name:       pipeline.StageGenerate,
			Adapters:   llmAdapters,
			FallbackFn: func(in pipeline.Prompt) string { return llm.FallbackReply(in.UserText) },
		},
		TTS: &pipeline.Stage[string, pipeline.Audio]{
			Name:     pipeline.StageSynthesize,
			Adapters: ttsAdapters,
			Fallback: tts.Placeholder(),
		},
		Publisher: bus.Publisher,
	}
}

func buildWeather(cfg *config.Config) *weather.Service {
	var adapters []provider.Adapter[string, weather.Report]
	if cfg.Providers.WeatherAPI.APIKey != "" {
		adapters = append(adapters, weather.NewWeatherAPI(cfg.Providers.WeatherAPI.APIKey, cfg.ProviderTimeout()))
	}
	if cfg.Providers.OpenWeather.APIKey != "" {
		adapters = append(adapters, weather.NewOpenWeather(cfg.Providers.OpenWeather.APIKey, cfg.ProviderTimeout()))
	}
	return weather.NewService(adapters...)
}

func configStatus(cfg *config.Config) webserver.ConfigStatus {
	return webserver.ConfigStatus{
		AssemblyAI:  cfg.Providers.AssemblyAI.APIKey != "",
		OpenAI:      cfg.Providers.OpenAI.APIKey != "",
		Gemini:      cfg.Providers.Gemini.APIKey != "",
		Anthropic:   cfg.Providers.Anthropic.APIKey != "",
		Murf:        cfg.Providers.Murf.APIKey != "",
		WeatherAPI:  cfg.Providers.WeatherAPI.APIKey != "",
		OpenWeather: cfg.Providers.OpenWeather.APIKey != "",
	}
}
