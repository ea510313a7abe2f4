// Package google implements longform.ChatProvider with Gemini models and
// longform.ImageProvider with Imagen, both through the Google GenAI SDK.
package google
