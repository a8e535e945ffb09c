package llm

import "strings"

// FallbackReply picks a canned response keyed off the user's message, used
// when the whole LLM chain is down. Keeping these conversational makes the
// degraded mode feel less broken than a generic error string.
func FallbackReply(userText string) string {
	lower := strings.ToLower(userText)
	switch {
	case containsAny(lower, "hello", "hi", "hey"):
		return "Hello! I'm having some technical difficulties with my AI services right now, but I'm still here to chat with you."
	case containsAny(lower, "trouble", "problem", "issue"):
		return "I understand you're having some trouble. I'm also experiencing some technical difficulties right now, but I'm here to help as best I can."
	case containsAny(lower, "help", "assist"):
		return "I'd love to help you, but I'm experiencing some connectivity issues with my AI services. Please try again in a moment."
	default:
		return "I'm having trouble connecting to my AI services right now. Please try again in a moment, and I'll do my best to assist you."
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
