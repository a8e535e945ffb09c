package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxaura/voxaura/pkg/provider"
	"github.com/voxaura/voxaura/pkg/session"
)

func testPipeline() *Pipeline {
	return &Pipeline{
		STT: &Stage[AudioInput, string]{
			Name: StageTranscribe,
			Adapters: []provider.Adapter[AudioInput, string]{
				provider.Func[AudioInput, string]{AdapterName: "stt-ok", Fn: func(_ context.Context, in AudioInput) (string, error) {
					return "transcript of " + string(in.Data), nil
				}},
			},
			Fallback: "I'm having trouble with speech recognition right now",
		},
		LLM: &Stage[Prompt, string]{
			Name: StageGenerate,
			Adapters: []provider.Adapter[Prompt, string]{
				provider.Func[Prompt, string]{AdapterName: "llm-ok", Fn: func(_ context.Context, in Prompt) (string, error) {
					return "reply to: " + in.UserText, nil
				}},
			},
			Fallback: "I'm having trouble connecting to my AI services right now.",
		},
		TTS: &Stage[string, Audio]{
			Name: StageSynthesize,
			Adapters: []provider.Adapter[string, Audio]{
				provider.Func[string, Audio]{AdapterName: "tts-ok", Fn: func(_ context.Context, text string) (Audio, error) {
					return Audio{Data: []byte("mp3:" + text), Format: "mp3"}, nil
				}},
			},
			Fallback: Audio{Data: []byte("placeholder"), Format: "wav"},
		},
	}
}

func TestRunTextInputSkipsTranscription(t *testing.T) {
	p := testPipeline()
	res := p.Run(context.Background(), Request{SessionID: "s1", Text: "what's the weather"})
	require.Equal(t, "what's the weather", res.Transcript)
	require.Empty(t, res.TranscriptProvider)
	require.Equal(t, "reply to: what's the weather", res.Reply)
	require.Equal(t, "mp3:reply to: what's the weather", string(res.Audio.Data))
	require.NotEmpty(t, res.RunID)
}

func TestRunSTTTimeoutFallsBackToSecondary(t *testing.T) {
	p := testPipeline()
	p.STT.Adapters = []provider.Adapter[AudioInput, string]{
		provider.Func[AudioInput, string]{AdapterName: "stt-slow", Fn: func(context.Context, AudioInput) (string, error) {
			return "", provider.Errorf("stt-slow", provider.Timeout, "deadline exceeded")
		}},
		provider.Func[AudioInput, string]{AdapterName: "stt-backup", Fn: func(context.Context, AudioInput) (string, error) {
			return "hello world", nil
		}},
	}

	res := p.Run(context.Background(), Request{SessionID: "s1", Audio: &AudioInput{Data: []byte("pcm")}})
	require.Equal(t, "hello world", res.Transcript)
	require.Equal(t, "stt-backup", res.TranscriptProvider)
	require.False(t, res.TranscriptDegraded)
	require.Equal(t, "reply to: hello world", res.Reply)
}

func TestRunAllTTSFailStillReturnsReply(t *testing.T) {
	p := testPipeline()
	fail := func(name string) provider.Adapter[string, Audio] {
		return provider.Func[string, Audio]{AdapterName: name, Fn: func(context.Context, string) (Audio, error) {
			return Audio{}, provider.Errorf(name, provider.NetworkError, "down")
		}}
	}
	p.TTS.Adapters = []provider.Adapter[string, Audio]{fail("murf"), fail("gtts"), fail("espeak")}

	res := p.Run(context.Background(), Request{SessionID: "s1", Text: "hi"})
	require.Equal(t, "reply to: hi", res.Reply)
	require.False(t, res.ReplyDegraded)
	require.True(t, res.AudioDegraded)
	require.Equal(t, "placeholder", string(res.Audio.Data))
}

func TestRunDegradedTranscriptStillFeedsDownstream(t *testing.T) {
	p := testPipeline()
	p.STT.Adapters = []provider.Adapter[AudioInput, string]{
		provider.Func[AudioInput, string]{AdapterName: "stt-dead", Fn: func(context.Context, AudioInput) (string, error) {
			return "", provider.Errorf("stt-dead", provider.NetworkError, "down")
		}},
	}

	res := p.Run(context.Background(), Request{SessionID: "s1", Audio: &AudioInput{Data: []byte("pcm")}})
	require.True(t, res.TranscriptDegraded)
	require.Equal(t, p.STT.Fallback, res.Transcript)
	// downstream stages still executed using the fallback as input
	require.Equal(t, "reply to: "+p.STT.Fallback, res.Reply)
	require.False(t, res.AudioDegraded)
}

func TestRunPassesHistoryToLLM(t *testing.T) {
	p := testPipeline()
	var got Prompt
	p.LLM.Adapters = []provider.Adapter[Prompt, string]{
		provider.Func[Prompt, string]{AdapterName: "llm-capture", Fn: func(_ context.Context, in Prompt) (string, error) {
			got = in
			return "ok", nil
		}},
	}
	history := []session.Turn{
		{SessionID: "s1", Role: session.RoleUser, Text: "earlier"},
		{SessionID: "s1", Role: session.RoleAssistant, Text: "earlier reply"},
	}
	p.Run(context.Background(), Request{SessionID: "s1", Text: "now", History: history})
	require.Equal(t, history, got.History)
	require.Equal(t, "now", got.UserText)
}

func TestRunTruncatesLongReplyBeforeSynthesis(t *testing.T) {
	p := testPipeline()
	long := strings.Repeat("a", 4000)
	p.LLM.Adapters = []provider.Adapter[Prompt, string]{
		provider.Func[Prompt, string]{AdapterName: "llm-long", Fn: func(context.Context, Prompt) (string, error) {
			return long, nil
		}},
	}
	var spoken string
	p.TTS.Adapters = []provider.Adapter[string, Audio]{
		provider.Func[string, Audio]{AdapterName: "tts-capture", Fn: func(_ context.Context, text string) (Audio, error) {
			spoken = text
			return Audio{Data: []byte("x"), Format: "mp3"}, nil
		}},
	}

	res := p.Run(context.Background(), Request{SessionID: "s1", Text: "talk a lot"})
	// full reply is preserved in the result, only the spoken text is cut
	require.Equal(t, long, res.Reply)
	require.Len(t, spoken, DefaultMaxSpeechChars-100+3)
	require.True(t, strings.HasSuffix(spoken, "..."))
}

func TestTruncateForSpeech(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"under limit untouched", "short reply", 3000, "short reply"},
		{"at limit untouched", strings.Repeat("a", 50), 50, strings.Repeat("a", 50)},
		{"over limit cut with ellipsis", strings.Repeat("a", 300), 200, strings.Repeat("a", 100) + "..."},
		{"tiny limit keeps only ellipsis", strings.Repeat("a", 200), 50, "..."},
		{"multibyte under rune limit untouched", strings.Repeat("ü", 40), 50, strings.Repeat("ü", 40)},
		{"multibyte over rune limit cut by runes", strings.Repeat("ü", 300), 150, strings.Repeat("ü", 50) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, truncateForSpeech(tt.text, tt.limit))
		})
	}
}

func TestRunTinySpeechLimitDoesNotPanic(t *testing.T) {
	p := testPipeline()
	p.MaxSpeechChars = 50
	p.LLM.Adapters = []provider.Adapter[Prompt, string]{
		provider.Func[Prompt, string]{AdapterName: "llm-long", Fn: func(context.Context, Prompt) (string, error) {
			return strings.Repeat("a", 200), nil
		}},
	}
	var spoken string
	p.TTS.Adapters = []provider.Adapter[string, Audio]{
		provider.Func[string, Audio]{AdapterName: "tts-capture", Fn: func(_ context.Context, text string) (Audio, error) {
			spoken = text
			return Audio{Data: []byte("x"), Format: "mp3"}, nil
		}},
	}

	p.Run(context.Background(), Request{SessionID: "s1", Text: "hi"})
	require.Equal(t, "...", spoken)
}
