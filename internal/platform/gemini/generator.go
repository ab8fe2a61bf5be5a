// Package gemini implements the generation.Generator interface using
// Google's Gemini API.
package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"google.golang.org/genai"

	"github.com/aromatch/aromatch-api/internal/config"
	"github.com/aromatch/aromatch-api/internal/domain"
	"github.com/aromatch/aromatch-api/internal/generation"
)

//go:embed prompt.tmpl
var promptTemplateText string

// ErrNilFragrance is returned when GenerateNoteProfile is called without a
// fragrance.
var ErrNilFragrance = errors.New("fragrance cannot be nil")

// NoteProfileGenerator implements generation.Generator over the Gemini API.
//
// It makes exactly one API call per invocation and returns failures raw so
// the recovery layer can classify them; retrying here would multiply with
// the recovery layer's own retries.
type NoteProfileGenerator struct {
	logger         *slog.Logger
	config         config.LLMConfig
	promptTemplate *template.Template
	client         *genai.Client
	model          string
}

// NewNoteProfileGenerator creates a NoteProfileGenerator with the provided
// dependencies.
func NewNoteProfileGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*NoteProfileGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	promptTemplate, err := template.New("note_profile").Parse(promptTemplateText)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", generation.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &NoteProfileGenerator{
		logger:         logger.With("component", "note_profile_generator"),
		config:         cfg,
		promptTemplate: promptTemplate,
		client:         client,
		model:          cfg.ModelName,
	}, nil
}

// GenerateNoteProfile creates a note profile for the given fragrance with a
// single Gemini call.
func (g *NoteProfileGenerator) GenerateNoteProfile(ctx context.Context, fragrance *domain.Fragrance) (*domain.NoteProfile, error) {
	if fragrance == nil {
		return nil, ErrNilFragrance
	}

	prompt, err := g.createPrompt(fragrance)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "calling Gemini API",
		"fragrance_id", fragrance.ID,
		"model", g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		// Returned raw: the caller's classifier reads the provider's
		// status text (429, 5xx, quota) out of the message.
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}

	return g.parseResponse(ctx, resp, fragrance)
}

// createPrompt renders the embedded prompt template for a fragrance.
func (g *NoteProfileGenerator) createPrompt(fragrance *domain.Fragrance) (string, error) {
	var buf bytes.Buffer
	if err := g.promptTemplate.Execute(&buf, fragrance); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}

// parseResponse validates the API response and decodes the JSON body into
// a NoteProfile.
func (g *NoteProfileGenerator) parseResponse(
	ctx context.Context,
	resp *genai.GenerateContentResponse,
	fragrance *domain.Fragrance,
) (*domain.NoteProfile, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}

	var profile domain.NoteProfile
	if err := json.Unmarshal([]byte(text), &profile); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}

	if len(profile.TopNotes) == 0 && len(profile.HeartNotes) == 0 && len(profile.BaseNotes) == 0 {
		return nil, fmt.Errorf("%w: profile contains no notes", generation.ErrInvalidResponse)
	}

	g.logger.InfoContext(ctx, "note profile generated",
		"fragrance_id", fragrance.ID,
		"top_notes", len(profile.TopNotes),
		"heart_notes", len(profile.HeartNotes),
		"base_notes", len(profile.BaseNotes))

	return &profile, nil
}
