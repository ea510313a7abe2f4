package google

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/retry"
	"google.golang.org/genai"
)

var errNoImages = errors.New("google: no images returned")

// GenerateImage generates images from a text prompt using Imagen. Images
// come back as base64 data; Imagen returns neither URLs nor revised prompts.
func (c *Client) GenerateImage(ctx context.Context, prompt string, opts ...longform.ImageOption) (*longform.ImageResponse, error) {
	options := longform.ApplyImageOptions(opts...)

	model := c.imageModel.String()
	if options.Model != "" {
		model = options.Model
	}

	config := &genai.GenerateImagesConfig{
		NumberOfImages: int32(max(options.Count, 1)),
		AspectRatio:    aspectRatio(options.Size),
	}

	return retry.Do(ctx, c.retry, func() (*longform.ImageResponse, error) {
		resp, err := c.client.Models.GenerateImages(ctx, model, prompt, config)
		if err != nil {
			return nil, wrapError(err)
		}

		var images []longform.GeneratedImage
		for _, img := range resp.GeneratedImages {
			if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
				continue
			}
			images = append(images, longform.GeneratedImage{
				Base64: base64.StdEncoding.EncodeToString(img.Image.ImageBytes),
			})
		}
		if len(images) == 0 {
			return nil, errNoImages
		}
		return &longform.ImageResponse{Images: images}, nil
	})
}

// aspectRatio maps a pixel size onto the Imagen aspect ratio strings.
func aspectRatio(size longform.ImageSize) string {
	switch size {
	case longform.ImageSize1024x1792:
		return "9:16"
	case longform.ImageSize1792x1024:
		return "16:9"
	default:
		return "1:1"
	}
}
