package composer

import (
	"fmt"

	"github.com/mkoval/hybridrag/internal/engine"
)

const answerSystemPrompt = `You combine vector and graph context to answer technical questions. Only rely on the supplied context; admit when information is missing.`

// BuildAnswerPrompt constructs the chat messages for answer generation from
// an assembled context and the user's question.
func BuildAnswerPrompt(question, context string) []engine.Message {
	user := question
	if context != "" {
		user = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, question)
	}
	return []engine.Message{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: user},
	}
}
