package google

// ChatModel represents a Gemini chat model.
type ChatModel string

const (
	Gemini25Pro       ChatModel = "gemini-2.5-pro"
	Gemini25Flash     ChatModel = "gemini-2.5-flash"
	Gemini25FlashLite ChatModel = "gemini-2.5-flash-lite"

	DefaultChatModel = Gemini25Flash
)

// String returns the model identifier.
func (m ChatModel) String() string { return string(m) }

// ImageModel represents an Imagen model.
type ImageModel string

const (
	Imagen3 ImageModel = "imagen-3.0-generate-002"

	DefaultImageModel = Imagen3
)

// String returns the model identifier.
func (m ImageModel) String() string { return string(m) }
