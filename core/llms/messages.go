package llms

import "strings"

// Role describes who a turn is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single, immutable entry of the conversation history.
type Turn struct {
	Role    Role
	Content string
}

func NewUserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func NewAssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Label is the speaker name used when rendering a transcript.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case "":
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// RenderTranscript renders turns as "User: ..." / "Assistant: ..." lines,
// oldest first.
func RenderTranscript(turns []Turn) string {
	var sb strings.Builder
	for i, turn := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(turn.Role.Label())
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
	}
	return sb.String()
}
