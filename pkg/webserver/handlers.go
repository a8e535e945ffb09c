package webserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/pipeline"
	"github.com/voxaura/voxaura/pkg/session"
	"github.com/voxaura/voxaura/pkg/weather"
)

// maxAudioUpload bounds multipart audio bodies.
const maxAudioUpload = 10 << 20

type chatResponse struct {
	SessionID  string `json:"session_id"`
	RunID      string `json:"run_id"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply"`
	AudioURL   string `json:"audio_url,omitempty"`
	Degraded   bool   `json:"degraded"`

	TranscriptProvider string `json:"transcript_provider,omitempty"`
	ReplyProvider      string `json:"reply_provider,omitempty"`
	AudioProvider      string `json:"audio_provider,omitempty"`
}

// handleChat runs the full pipeline for one session turn. Provider failures
// degrade the payload but never the status code; only unusable input is a 400.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	req, ok := s.chatRequest(w, r, sessionID)
	if !ok {
		return
	}

	history, err := s.sessions.History(r.Context(), sessionID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "loading history failed")
		return
	}
	req.History = history

	res := s.pipe.Run(r.Context(), req)

	audioURL := ""
	audioRef := ""
	if len(res.Audio.Data) > 0 {
		name, err := s.audio.PutSynthesized(res.Audio.Data, res.Audio.Format)
		if err != nil {
			log.Error().Err(err).Msg("storing synthesized audio failed")
		} else {
			audioRef = name
			audioURL = "/audio/" + name
		}
	}

	s.recordTurn(r, session.Turn{
		SessionID: sessionID,
		Role:      session.RoleUser,
		Text:      res.Transcript,
		Degraded:  res.TranscriptDegraded,
	})
	s.recordTurn(r, session.Turn{
		SessionID: sessionID,
		Role:      session.RoleAssistant,
		Text:      res.Reply,
		AudioRef:  audioRef,
		Degraded:  res.ReplyDegraded || res.AudioDegraded,
	})

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:          sessionID,
		RunID:              res.RunID,
		Transcript:         res.Transcript,
		Reply:              res.Reply,
		AudioURL:           audioURL,
		Degraded:           res.TranscriptDegraded || res.ReplyDegraded || res.AudioDegraded,
		TranscriptProvider: res.TranscriptProvider,
		ReplyProvider:      res.ReplyProvider,
		AudioProvider:      res.AudioProvider,
	})
}

// chatRequest pulls either multipart audio or JSON text out of the request.
func (s *Server) chatRequest(w http.ResponseWriter, r *http.Request, sessionID string) (pipeline.Request, bool) {
	req := pipeline.Request{SessionID: sessionID}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		audio, contentType, ok := readAudioPart(w, r)
		if !ok {
			return req, false
		}
		req.Audio = &pipeline.AudioInput{Data: audio, ContentType: contentType}
		return req, true
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	body.Text = strings.TrimSpace(body.Text)
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return req, false
	}
	req.Text = body.Text
	return req, true
}

func (s *Server) recordTurn(r *http.Request, turn session.Turn) {
	if err := s.sessions.Append(r.Context(), turn); err != nil {
		log.Error().Err(err).Str("session_id", turn.SessionID).Msg("recording turn failed")
		return
	}
	pipeline.Publish(s.publisher, turn.SessionID, pipeline.Event{
		Type:     pipeline.EventTurnRecorded,
		Role:     string(turn.Role),
		Text:     turn.Text,
		Degraded: turn.Degraded,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	turns, err := s.sessions.History(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := s.sessions.Clear(r.Context(), sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "clearing session failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "cleared"})
}

// handleTranscribe runs the transcribe stage alone.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, contentType, ok := readAudioPart(w, r)
	if !ok {
		return
	}
	outcome := s.pipe.STT.Run(r.Context(), pipeline.AudioInput{Data: audio, ContentType: contentType}, nopEmit)
	writeJSON(w, http.StatusOK, map[string]any{
		"transcript": outcome.Payload,
		"provider":   outcome.Provider,
		"degraded":   outcome.Degraded,
	})
}

// handleGenerate runs the generate stage alone, with history when a session
// id is supplied.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Text = strings.TrimSpace(body.Text)
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var history []session.Turn
	if body.SessionID != "" {
		if h, err := s.sessions.History(r.Context(), body.SessionID); err == nil {
			history = h
		}
	}

	outcome := s.pipe.LLM.Run(r.Context(), pipeline.Prompt{History: history, UserText: body.Text}, nopEmit)
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":    outcome.Payload,
		"provider": outcome.Provider,
		"degraded": outcome.Degraded,
	})
}

// handleTTS runs the synthesize stage alone and returns a served audio URL.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body.Text = strings.TrimSpace(body.Text)
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	outcome := s.pipe.TTS.Run(r.Context(), body.Text, nopEmit)
	name, err := s.audio.PutSynthesized(outcome.Payload.Data, outcome.Payload.Format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storing audio failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"audio_url": "/audio/" + name,
		"provider":  outcome.Provider,
		"degraded":  outcome.Degraded,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	audio, contentType, ok := readAudioPart(w, r)
	if !ok {
		return
	}
	name, err := s.audio.PutUpload(audio, contentType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename": name,
		"size":     len(audio),
		"url":      "/audio/" + name,
	})
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.audio.ServeHTTP(w, r, r.PathValue("filename"))
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if strings.TrimSpace(city) == "" {
		writeError(w, http.StatusBadRequest, "city query parameter is required")
		return
	}
	if !s.weather.Configured() {
		writeError(w, http.StatusServiceUnavailable, "no weather provider configured")
		return
	}

	report, err := s.weather.Current(r.Context(), city)
	if err != nil {
		if errors.Is(err, weather.ErrCityNotFound) {
			writeError(w, http.StatusNotFound, "city not found")
			return
		}
		writeError(w, http.StatusBadGateway, "weather lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"summary": report.Summary(),
	})
}

// ConfigStatus reports which providers have credentials, booleans only.
type ConfigStatus struct {
	AssemblyAI  bool `json:"assemblyai"`
	OpenAI      bool `json:"openai"`
	Gemini      bool `json:"gemini"`
	Anthropic   bool `json:"anthropic"`
	Murf        bool `json:"murf"`
	WeatherAPI  bool `json:"weatherapi"`
	OpenWeather bool `json:"openweather"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>VoxAura</title></head>
<body>
<h1>VoxAura</h1>
<p>Voice assistant server is running. API lives under <code>/api</code>,
stage events under <code>/ws?session_id=...</code>.</p>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexPage))
}

// readAudioPart extracts the audio file from a multipart body, accepting
// either an "audio" or "file" field.
func readAudioPart(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return nil, "", false
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio file is required")
		return nil, "", false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading audio failed")
		return nil, "", false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "audio file is empty")
		return nil, "", false
	}
	return data, header.Header.Get("Content-Type"), true
}

func nopEmit(pipeline.Event) {}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writing response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
