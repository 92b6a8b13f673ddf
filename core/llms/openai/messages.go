package openai

import (
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-phone/core/llms"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	messageRoleSystem = string(llms.RoleSystem)
	messageRoleUser   = string(llms.RoleUser)
)

func toChatMessages(instructions string, turns []llms.Turn, prompt string) ([]chatMessage, error) {
	var history []chatMessage
	if err := copier.Copy(&history, turns); err != nil {
		return nil, fmt.Errorf("failed to convert history: %w", err)
	}

	messages := make([]chatMessage, 0, len(history)+2)
	if instructions != "" {
		messages = append(messages, chatMessage{Role: messageRoleSystem, Content: instructions})
	}
	messages = append(messages, history...)
	messages = append(messages, chatMessage{Role: messageRoleUser, Content: prompt})
	return messages, nil
}
