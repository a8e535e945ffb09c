// Package llm contains language-model provider adapters and the shared
// conversation-context builder.
package llm

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/voxaura/voxaura/pkg/session"
)

const systemPreamble = "You are VoxAura, a helpful AI voice assistant. Provide concise, conversational responses under 3000 characters."

// DefaultHistoryTokenBudget bounds how much prior conversation is replayed
// into the prompt. Turns are dropped oldest-first once the budget is spent.
const DefaultHistoryTokenBudget = 2048

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func tokenCount(text string) int {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("tokenizer unavailable, falling back to rune-count estimate")
			return
		}
		codec = c
	})
	if codec == nil {
		// ~4 chars per token is close enough for budget trimming
		return len([]rune(text))/4 + 1
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len([]rune(text))/4 + 1
	}
	return len(ids)
}

// historyWindow returns the most recent turns whose combined size fits the
// token budget, oldest first.
func historyWindow(history []session.Turn, budget int) []session.Turn {
	if budget <= 0 {
		budget = DefaultHistoryTokenBudget
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := tokenCount(history[i].Text) + 4
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}

// buildContext renders the persona preamble, the recent history, and the
// current message into a single prompt string.
func buildContext(history []session.Turn, userText string, budget int) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nConversation history:\n")
	for _, turn := range historyWindow(history, budget) {
		label := "User"
		if turn.Role == session.RoleAssistant {
			label = "VoxAura"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(userText)
	b.WriteString("\n\nVoxAura:")
	return b.String()
}
