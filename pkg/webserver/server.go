// Package webserver exposes the voice pipeline over HTTP and streams stage
// events to websocket clients.
package webserver

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/voxaura/voxaura/pkg/audiostore"
	"github.com/voxaura/voxaura/pkg/events"
	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/session"
	"github.com/voxaura/voxaura/pkg/weather"
)

// Options collects everything the server needs; all fields except Status are
// required.
type Options struct {
	Addr     string
	Pipeline *pipeline.Pipeline
	Sessions session.Store
	Audio    *audiostore.Store
	Weather  *weather.Service
	Bus      *events.Bus
	Status   ConfigStatus

	// StreamIdleTimeout overrides how long session forwarders survive without
	// clients. Zero means DefaultStreamIdleTimeout.
	StreamIdleTimeout time.Duration
}

// Server owns the HTTP listener and the websocket stream hub.
type Server struct {
	addr      string
	pipe      *pipeline.Pipeline
	sessions  session.Store
	audio     *audiostore.Store
	weather   *weather.Service
	publisher message.Publisher
	status    ConfigStatus
	hub       *StreamHub
	httpSrv   *http.Server
}

func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Audio == nil {
		return nil, errors.New("audio store is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	if opts.Weather == nil {
		opts.Weather = weather.NewService()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	s := &Server{
		addr:      opts.Addr,
		pipe:      opts.Pipeline,
		sessions:  opts.Sessions,
		audio:     opts.Audio,
		weather:   opts.Weather,
		publisher: opts.Bus.Publisher,
		status:    opts.Status,
		hub:       NewStreamHub(ctx, opts.Bus, opts.StreamIdleTimeout),
	}
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/chat/{session_id}", s.handleChat)
	mux.HandleFunc("GET /api/chat/{session_id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/chat/{session_id}/clear", s.handleClear)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /audio/{filename}", s.handleAudio)
	mux.HandleFunc("GET /api/weather", s.handleWeather)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.HandleFunc("GET /ws", s.hub.HandleWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// Run serves until ctx is cancelled or an interrupt arrives, then drains with
// a 30 second grace period.
func (s *Server) Run(ctx context.Context) error {
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			log.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		shutdownBase := context.WithoutCancel(ctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownBase, 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
			return err
		}
		s.hub.Close()
		if err := s.sessions.Close(); err != nil {
			log.Error().Err(err).Msg("session store close error")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		defer srvCancel()
		log.Info().Str("addr", s.addr).Msg("starting voxaura server")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}
