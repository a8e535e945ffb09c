package pipeline

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/voxaura/voxaura/pkg/provider"
)

// Stage runs an ordered chain of provider adapters and falls back to a static
// default when the whole chain fails. Each adapter is tried exactly once, in
// order, with no backoff and no per-adapter retry.
type Stage[I, O any] struct {
	Name     string
	Adapters []provider.Adapter[I, O]

	// Fallback is returned when every adapter fails. FallbackFn, when set,
	// takes precedence so the default can depend on the input (the reply
	// stage apologizes differently for greetings than for questions).
	Fallback   O
	FallbackFn func(in I) O
}

// Attempt records one failed adapter call.
type Attempt struct {
	Provider string             `json:"provider"`
	Kind     provider.ErrorKind `json:"error_kind"`
	Err      string             `json:"error"`
}

// Outcome is the stage's all-or-nothing result. Degraded means the fallback
// value was used; the pipeline still proceeds to the next stage with it.
type Outcome[O any] struct {
	Payload  O
	Provider string
	Degraded bool
	Attempts []Attempt
}

// Run walks the chain. The first successful adapter's payload is returned
// unchanged and no later adapter is invoked.
func (s *Stage[I, O]) Run(ctx context.Context, in I, emit Emitter) Outcome[O] {
	var attempts []Attempt
	for _, adapter := range s.Adapters {
		out, err := adapter.Call(ctx, in)
		if err == nil {
			return Outcome[O]{Payload: out, Provider: adapter.Name(), Attempts: attempts}
		}

		kind := provider.KindOf(err)
		evt := log.Warn()
		if kind == provider.AuthError {
			evt = log.Error()
		}
		evt.Err(err).
			Str("stage", s.Name).
			Str("provider", adapter.Name()).
			Str("error_kind", string(kind)).
			Msg("provider call failed, trying next in chain")

		attempts = append(attempts, Attempt{Provider: adapter.Name(), Kind: kind, Err: err.Error()})
		emit(Event{
			Type:      EventProviderFailed,
			Stage:     s.Name,
			Provider:  adapter.Name(),
			ErrorKind: string(kind),
		})
	}

	fallback := s.Fallback
	if s.FallbackFn != nil {
		fallback = s.FallbackFn(in)
	}
	log.Warn().Str("stage", s.Name).Int("providers_tried", len(attempts)).
		Msg("provider chain exhausted, using stage fallback")
	emit(Event{Type: EventStageFallback, Stage: s.Name})
	return Outcome[O]{Payload: fallback, Degraded: true, Attempts: attempts}
}
