package intent

import (
	"strings"
	"testing"
)

func TestPromptContainsInstructions(t *testing.T) {
	messages := BuildPrompt("test query")

	if len(messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(messages))
	}

	system := messages[0].Content
	if !strings.Contains(system, "keyword extraction engine") {
		t.Error("system prompt does not contain role instruction")
	}
	if !strings.Contains(system, "named entities") {
		t.Error("system prompt does not ask for entities")
	}
	if messages[1].Role != "user" || messages[1].Content != "test query" {
		t.Errorf("user message = %+v", messages[1])
	}
}
