package openai

import (
	"testing"

	"github.com/koscakluka/ema-phone/core/llms"
)

func TestToChatMessagesPutsInstructionsFirstAndPromptLast(t *testing.T) {
	turns := []llms.Turn{
		llms.NewUserTurn("first prompt"),
		llms.NewAssistantTurn("first reply"),
		llms.NewUserTurn("second prompt"),
	}

	messages, err := toChatMessages("be brief", turns, "composed prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messages) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "be brief" {
		t.Fatalf("unexpected system message: %+v", messages[0])
	}
	if messages[1].Role != "user" || messages[1].Content != "first prompt" {
		t.Fatalf("unexpected first history message: %+v", messages[1])
	}
	if messages[2].Role != "assistant" || messages[2].Content != "first reply" {
		t.Fatalf("unexpected assistant history message: %+v", messages[2])
	}
	if messages[4].Role != "user" || messages[4].Content != "composed prompt" {
		t.Fatalf("unexpected prompt message: %+v", messages[4])
	}
}

func TestToChatMessagesWithoutInstructionsOrHistory(t *testing.T) {
	messages, err := toChatMessages("", nil, "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messages) != 1 || messages[0].Role != "user" || messages[0].Content != "prompt" {
		t.Fatalf("expected only the prompt message, got %+v", messages)
	}
}
