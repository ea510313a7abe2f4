package anthropic

// ChatModel represents an Anthropic Claude model.
type ChatModel string

const (
	ClaudeOpus45   ChatModel = "claude-opus-4-5"
	ClaudeSonnet45 ChatModel = "claude-sonnet-4-5"
	ClaudeHaiku45  ChatModel = "claude-haiku-4-5"

	DefaultChatModel = ClaudeSonnet45
)

// String returns the model identifier.
func (m ChatModel) String() string { return string(m) }
