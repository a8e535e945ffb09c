// Package pipeline orchestrates the three-stage voice pipeline: transcribe,
// generate, synthesize. Each stage tries an ordered provider chain and
// degrades to a static fallback instead of failing the request; a request that
// reaches the pipeline always produces a result.
package pipeline

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/session"
)

// Stage names, also used in stream events.
const (
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSynthesize = "synthesize"
)

// AudioInput is the transcribe stage input.
type AudioInput struct {
	Data        []byte
	ContentType string
}

// Prompt is the generate stage input: the user's message plus prior turns for
// context.
type Prompt struct {
	History  []session.Turn
	UserText string
}

// Audio is the synthesize stage payload.
type Audio struct {
	Data   []byte
	Format string
}

// Request is one trip through the pipeline. Exactly one of Text or Audio is
// set; the caller validates that before invoking Run.
type Request struct {
	SessionID string
	Text      string
	Audio     *AudioInput
	History   []session.Turn
}

// Result carries every stage's payload plus degradation flags. Degraded
// stages used their fallback value; downstream stages still ran on it.
type Result struct {
	RunID string

	Transcript         string
	TranscriptProvider string
	TranscriptDegraded bool

	Reply         string
	ReplyProvider string
	ReplyDegraded bool

	Audio         Audio
	AudioProvider string
	AudioDegraded bool
}

// Pipeline wires the three stages to the event bus.
type Pipeline struct {
	STT *Stage[AudioInput, string]
	LLM *Stage[Prompt, string]
	TTS *Stage[string, Audio]

	// Publisher receives stage events; nil disables streaming.
	Publisher message.Publisher

	// MaxSpeechChars caps reply length before synthesis; longer replies are
	// truncated. Zero means DefaultMaxSpeechChars.
	MaxSpeechChars int
}

// DefaultMaxSpeechChars matches the character limit of the primary TTS vendor.
const DefaultMaxSpeechChars = 3000

// Run executes transcribe, generate, synthesize in order. Per-stage failures
// are absorbed by the fallback chains; Run itself never fails. There is no
// cross-stage rollback: a degraded late stage leaves earlier payloads intact.
func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	runID := uuid.NewString()
	emit := p.emitterFor(req.SessionID, runID)
	res := Result{RunID: runID}

	if req.Audio != nil {
		emit(Event{Type: EventStageStarted, Stage: StageTranscribe})
		outcome := p.STT.Run(ctx, *req.Audio, emit)
		res.Transcript = outcome.Payload
		res.TranscriptProvider = outcome.Provider
		res.TranscriptDegraded = outcome.Degraded
		emit(Event{
			Type:     EventStageCompleted,
			Stage:    StageTranscribe,
			Provider: outcome.Provider,
			Text:     outcome.Payload,
			Degraded: outcome.Degraded,
		})
	} else {
		res.Transcript = req.Text
	}

	emit(Event{Type: EventStageStarted, Stage: StageGenerate})
	llmOutcome := p.LLM.Run(ctx, Prompt{History: req.History, UserText: res.Transcript}, emit)
	res.Reply = llmOutcome.Payload
	res.ReplyProvider = llmOutcome.Provider
	res.ReplyDegraded = llmOutcome.Degraded
	emit(Event{
		Type:     EventStageCompleted,
		Stage:    StageGenerate,
		Provider: llmOutcome.Provider,
		Text:     llmOutcome.Payload,
		Degraded: llmOutcome.Degraded,
	})

	emit(Event{Type: EventStageStarted, Stage: StageSynthesize})
	ttsOutcome := p.TTS.Run(ctx, truncateForSpeech(res.Reply, p.maxSpeechChars()), emit)
	res.Audio = ttsOutcome.Payload
	res.AudioProvider = ttsOutcome.Provider
	res.AudioDegraded = ttsOutcome.Degraded
	emit(Event{
		Type:     EventStageCompleted,
		Stage:    StageSynthesize,
		Provider: ttsOutcome.Provider,
		Degraded: ttsOutcome.Degraded,
	})

	emit(Event{Type: EventPipelineDone, Degraded: res.TranscriptDegraded || res.ReplyDegraded || res.AudioDegraded})
	log.Info().
		Str("session_id", req.SessionID).
		Str("run_id", runID).
		Str("stt_provider", res.TranscriptProvider).
		Str("llm_provider", res.ReplyProvider).
		Str("tts_provider", res.AudioProvider).
		Bool("degraded", res.TranscriptDegraded || res.ReplyDegraded || res.AudioDegraded).
		Msg("pipeline run complete")
	return res
}

func (p *Pipeline) maxSpeechChars() int {
	if p.MaxSpeechChars > 0 {
		return p.MaxSpeechChars
	}
	return DefaultMaxSpeechChars
}

// truncateForSpeech keeps replies under the TTS character limit, cutting at
// limit-100 with an ellipsis so the spoken sentence trails off cleanly. The
// limit counts runes, matching how the vendors count characters.
func truncateForSpeech(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := limit - 100
	if cut < 0 {
		cut = 0
	}
	if cut > len(runes) {
		cut = len(runes)
	}
	return string(runes[:cut]) + "..."
}
