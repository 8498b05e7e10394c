package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dskvich/perplexed/pkg/domain"
)

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// imageService runs one-off image generations, independent of any
// conversation.
type imageService struct {
	generator ImageGenerator
}

func NewImageService(generator ImageGenerator) *imageService {
	return &imageService{generator: generator}
}

func (s *imageService) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrEmptyPrompt
	}

	slog.InfoContext(ctx, "starting image generation", "prompt", prompt)

	imageURL, err := s.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating image: %w", err)
	}

	slog.InfoContext(ctx, "image generated", "size", len(imageURL))

	return imageURL, nil
}
