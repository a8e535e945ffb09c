package pipeline

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/events"
)

// Event types streamed to websocket clients while a request moves through the
// pipeline.
const (
	EventStageStarted   = "stage_started"
	EventStageCompleted = "stage_completed"
	EventStageFallback  = "stage_fallback"
	EventProviderFailed = "provider_failed"
	EventTurnRecorded   = "turn_recorded"
	EventPipelineDone   = "pipeline_done"
)

// Event is the JSON frame published per pipeline transition.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Provider  string `json:"provider,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
	TsMs      int64  `json:"ts_ms"`
}

// Emitter receives stage events; the pipeline stamps ids and forwards them to
// the bus.
type Emitter func(e Event)

func nopEmitter(Event) {}

// Publish sends a single event outside a pipeline run, e.g. turn_recorded
// frames emitted by the web layer after appending to the session store.
func Publish(pub message.Publisher, sessionID string, e Event) {
	if pub == nil {
		return
	}
	e.SessionID = sessionID
	e.TsMs = time.Now().UnixMilli()
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(events.TopicForSession(sessionID), msg); err != nil {
		log.Warn().Err(err).Str("event", e.Type).Msg("event publish failed")
	}
}

func (p *Pipeline) emitterFor(sessionID, runID string) Emitter {
	if p.Publisher == nil {
		return nopEmitter
	}
	topic := events.TopicForSession(sessionID)
	return func(e Event) {
		e.SessionID = sessionID
		e.RunID = runID
		e.TsMs = time.Now().UnixMilli()
		payload, err := json.Marshal(e)
		if err != nil {
			return
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := p.Publisher.Publish(topic, msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("event", e.Type).Msg("stage event publish failed")
		}
	}
}
