package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
)

var errNoImages = errors.New("openai: no images returned")

// GenerateImage generates images from a text prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ...longform.ImageOption) (*longform.ImageResponse, error) {
	options := longform.ApplyImageOptions(opts...)

	model := c.imageModel.String()
	if options.Model != "" {
		model = options.Model
	}
	size := options.Size
	if size == "" {
		size = longform.ImageSize1024x1024
	}
	format := options.Format
	if format == "" {
		format = longform.ImageFormatURL
	}

	params := openai.ImageGenerateParams{
		Model:          openai.ImageModel(model),
		Prompt:         prompt,
		Size:           openai.ImageGenerateParamsSize(size),
		N:              openai.Int(int64(max(options.Count, 1))),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat(format),
	}

	return retry.Do(ctx, c.retry, func() (*longform.ImageResponse, error) {
		resp, err := c.client.Images.Generate(ctx, params)
		if err != nil {
			return nil, wrapError(err)
		}
		if len(resp.Data) == 0 {
			return nil, errNoImages
		}

		images := make([]longform.GeneratedImage, len(resp.Data))
		for i, img := range resp.Data {
			images[i] = longform.GeneratedImage{
				URL:           img.URL,
				Base64:        img.B64JSON,
				RevisedPrompt: img.RevisedPrompt,
			}
		}
		return &longform.ImageResponse{Images: images}, nil
	})
}
