package longform

// ImageOptions contains configuration for an image generation request.
type ImageOptions struct {
	Model  string
	Size   ImageSize
	Count  int
	Format ImageFormat
}

// ImageOption is a functional option for configuring image generation requests.
type ImageOption func(*ImageOptions)

// WithImageModel sets the model to use for image generation.
func WithImageModel(model string) ImageOption {
	return func(o *ImageOptions) {
		o.Model = model
	}
}

// WithImageSize sets the dimensions for generated images.
func WithImageSize(size ImageSize) ImageOption {
	return func(o *ImageOptions) {
		o.Size = size
	}
}

// WithImageCount sets the number of images to generate.
func WithImageCount(n int) ImageOption {
	return func(o *ImageOptions) {
		o.Count = n
	}
}

// WithImageFormat sets the output format for generated images.
func WithImageFormat(f ImageFormat) ImageOption {
	return func(o *ImageOptions) {
		o.Format = f
	}
}

// ApplyImageOptions applies functional options to an ImageOptions struct.
// Count defaults to 1.
func ApplyImageOptions(opts ...ImageOption) *ImageOptions {
	o := &ImageOptions{Count: 1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
