package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/telemetry"
)

// ErrNoTables is returned when generation is requested without any uploaded exports.
var ErrNoTables = errors.New("at least one CSV file is required")

// GenerationError reports a failed call to the text generation service.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("text generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Pipeline turns a knowledge base and uploaded exports into release note text.
type Pipeline struct {
	generator TextGenerator
}

// NewPipeline creates a pipeline that uses generator.
func NewPipeline(generator TextGenerator) *Pipeline {
	return &Pipeline{generator: generator}
}

// Generate builds the prompt and calls the generator once.
func (p *Pipeline) Generate(ctx context.Context, content *models.KnowledgeBaseContent, tables []*Table) (text string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "generate.Pipeline.Generate", attribute.Int("tables", len(tables)))
	defer func() { telemetry.EndSpan(span, err) }()

	if len(tables) == 0 {
		return "", ErrNoTables
	}

	prompt, err := BuildPrompt(content, tables)
	if err != nil {
		return "", err
	}

	start := time.Now()

	span.SetAttributes(attribute.Int("prompt_bytes", len(prompt)))

	text, err = p.generator.GenerateText(ctx, prompt)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Err: errors.New("generator returned no text")}
	}

	log.Info().
		Int("tables", len(tables)).
		Int("prompt_bytes", len(prompt)).
		Dur("duration", time.Since(start)).
		Msg("Release notes generated")

	return text, nil
}
