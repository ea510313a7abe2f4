// Package client builds the chat and image backends a longform run talks to.
//
// One provider serves chat; a second, possibly different, provider serves
// image generation. Provider SDK clients are created lazily on first use,
// so a process configured with several keys only dials the ones it needs.
//
//	c, err := client.New(client.Config{
//	    Provider:      longform.ProviderAnthropic,
//	    ImageProvider: longform.ProviderOpenAI,
//	    APIKeys: client.APIKeys{
//	        Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
//	        OpenAI:    os.Getenv("OPENAI_API_KEY"),
//	    },
//	})
//
// The Client implements longform.ChatProvider. Images returns the image
// backend, or nil when none is configured.
//
// # Events
//
// Config.Events receives a request_start, request_complete or request_error
// event around every call and a retry event for every backoff inside a
// provider. Sends never block; events are dropped when the channel is full.
package client
