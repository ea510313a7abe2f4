package agents

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spetersoncode/longform"
	"github.com/spetersoncode/longform/state"
	"github.com/spetersoncode/longform/workflow"
)

const sectionExcerpt = 1000

var errNoImageData = errors.New("image provider returned no usable image")

// Artist designs an illustration for every image the outline plans and
// every [IMAGE: type - description] placeholder in the prose. Diagrams and
// charts are kept as source; ai-image prompts are rendered through the
// image provider when one is configured.
type Artist struct {
	chat longform.ChatProvider
	cfg  config
}

// NewArtist creates an Artist.
func NewArtist(chat longform.ChatProvider, opts ...Option) *Artist {
	return &Artist{chat: chat, cfg: newConfig(opts)}
}

func (a *Artist) Name() string { return workflow.NodeImage }

type imageDesign struct {
	RenderMethod string `json:"render_method"`
	Content      string `json:"content"`
	Caption      string `json:"caption"`
}

// imageRequest is one illustration to design.
type imageRequest struct {
	sectionID   string
	imageType   string
	description string
	context     string
	placeholder string
}

func (a *Artist) Run(ctx context.Context, s *state.State) workflow.Outcome {
	requests := a.plan(s)
	a.cfg.logger.Info("designing images", "step", a.Name(), "count", len(requests))

	next := len(s.Images) + 1
	for i, req := range requests {
		img, err := a.design(ctx, req)
		if err != nil {
			a.cfg.logger.Warn("image design failed", "section", req.sectionID, "type", req.imageType, "error", err)
			continue
		}
		img.ID = fmt.Sprintf("img_%d", next)

		if img.RenderMethod == state.RenderAIImage && a.cfg.images != nil {
			path, err := a.renderAI(ctx, img)
			if err != nil {
				a.cfg.logger.Warn("image rendering failed", "image", img.ID, "error", err)
			}
			img.RenderedPath = path
		}

		if err := s.AddImage(img); err != nil {
			return workflow.Fatal(err)
		}
		next++
		a.cfg.logger.Debug("image designed", "image", img.ID, "method", img.RenderMethod, "progress", fmt.Sprintf("%d/%d", i+1, len(requests)))
	}
	return workflow.Continue()
}

// plan lists outline images first, then placeholders in section order.
func (a *Artist) plan(s *state.State) []imageRequest {
	var reqs []imageRequest

	if s.Outline != nil {
		for i, so := range s.Outline.Sections {
			if !so.WantsImage() {
				continue
			}
			if i >= len(s.Sections) {
				a.cfg.logger.Warn("outline image has no written section", "section", so.ID)
				continue
			}
			sec := s.Sections[i]
			reqs = append(reqs, imageRequest{
				sectionID:   sec.ID,
				imageType:   so.ImageType,
				description: so.ImageDescription,
				context:     fmt.Sprintf("Section: %s\n\n%s", so.Title, truncate(sec.Content, sectionExcerpt)),
			})
		}
	}

	for _, sec := range s.Sections {
		for _, p := range findPlaceholders(imagePlaceholder, sec.Content) {
			reqs = append(reqs, imageRequest{
				sectionID:   sec.ID,
				imageType:   p.Key,
				description: p.Description,
				context:     fmt.Sprintf("Section: %s\n\n%s", sec.Title, p.surrounding(sec.Content)),
				placeholder: p.Text,
			})
		}
	}
	return reqs
}

func (a *Artist) design(ctx context.Context, req imageRequest) (state.Image, error) {
	prompt, err := render("artist", map[string]any{
		"ImageType":   req.imageType,
		"Description": req.description,
		"Context":     req.context,
	})
	if err != nil {
		return state.Image{}, err
	}

	var d imageDesign
	if err := completeJSON(ctx, a.chat, a.cfg, prompt, &d); err != nil {
		return state.Image{}, err
	}
	return state.Image{
		SectionID:    req.sectionID,
		RenderMethod: state.ParseRenderMethod(d.RenderMethod),
		Content:      stripFence(d.Content),
		Caption:      d.Caption,
		Placeholder:  req.placeholder,
	}, nil
}

// renderAI draws an ai-image illustration and returns where it can be
// found: the provider's URL, or a file under the image directory.
func (a *Artist) renderAI(ctx context.Context, img state.Image) (string, error) {
	prompt, err := render("image", map[string]any{"Prompt": img.Content, "Caption": img.Caption})
	if err != nil {
		return "", err
	}

	resp, err := a.cfg.images.GenerateImage(ctx, prompt, longform.WithImageSize(longform.ImageSize1792x1024))
	if err != nil {
		return "", err
	}
	generated, ok := resp.First()
	if !ok {
		return "", errNoImageData
	}
	if generated.URL != "" {
		return generated.URL, nil
	}
	if generated.Base64 == "" || a.cfg.imageDir == "" {
		return "", errNoImageData
	}

	data, err := base64.StdEncoding.DecodeString(generated.Base64)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if err := os.MkdirAll(a.cfg.imageDir, 0o755); err != nil {
		return "", err
	}
	name := img.ID + ".png"
	if err := os.WriteFile(filepath.Join(a.cfg.imageDir, name), data, 0o644); err != nil {
		return "", err
	}
	return "./" + filepath.ToSlash(filepath.Join(filepath.Base(a.cfg.imageDir), name)), nil
}

// stripFence removes a surrounding ``` or ```lang fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
