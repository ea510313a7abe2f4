package openai

// ChatModel represents an OpenAI chat/completion model.
type ChatModel string

const (
	GPT4o     ChatModel = "gpt-4o"
	GPT4oMini ChatModel = "gpt-4o-mini"
	GPT41     ChatModel = "gpt-4.1"
	O4Mini    ChatModel = "o4-mini"

	// DefaultChatModel is used when neither the client nor the request
	// names a model.
	DefaultChatModel = GPT4o
)

// String returns the model identifier.
func (m ChatModel) String() string { return string(m) }

// ImageModel represents an OpenAI image generation model.
type ImageModel string

const (
	DallE3    ImageModel = "dall-e-3"
	GPTImage1 ImageModel = "gpt-image-1"

	DefaultImageModel = DallE3
)

// String returns the model identifier.
func (m ImageModel) String() string { return string(m) }
