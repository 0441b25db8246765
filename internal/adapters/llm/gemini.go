package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/sorafy/sorafy-agent/internal/domain"
)

// ErrMissingAPIKey is returned by every remote call when no credential is
// configured. The condition is surfaced at call time, not at startup.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

// GeminiClient implements the model, image-analysis and title-suggestion
// capabilities on the Gemini API.
type GeminiClient struct {
	client    *genai.Client
	apiKey    string
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	g := &GeminiClient{apiKey: apiKey, modelName: modelName}
	if apiKey == "" {
		// Defer the failure to the first call that needs the credential.
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiClient) ready() error {
	if g.client == nil {
		return ErrMissingAPIKey
	}
	return nil
}

// StreamMessage implements domain.ModelClient. A fresh chat is created from
// the system instruction and prior turns on every call; the returned
// sequence yields text deltas in arrival order.
func (g *GeminiClient) StreamMessage(
	ctx context.Context,
	system string,
	history []domain.ModelTurn,
	parts []domain.TurnPart,
) (iter.Seq2[string, error], error) {
	if err := g.ready(); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, genai.NewContentFromText(turn.Text, toGenaiRole(turn.Role)))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}

	chat, err := g.client.Chats.Create(ctx, g.modelName, cfg, contents)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	gparts := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Data != nil {
			gparts = append(gparts, genai.Part{
				InlineData: &genai.Blob{Data: p.Data, MIMEType: p.MIMEType},
			})
			continue
		}
		gparts = append(gparts, genai.Part{Text: p.Text})
	}

	stream := chat.SendMessageStream(ctx, gparts...)
	return func(yield func(string, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}, nil
}

// AnalyzeImage implements domain.ImageAnalyzer with a single-shot call.
func (g *GeminiClient) AnalyzeImage(ctx context.Context, image domain.ImageFile, language domain.Language) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}

	data, err := domain.DecodeDataURL(image.DataURL)
	if err != nil {
		return "", err
	}

	prompt := imageAnalysisPrompt
	if language == domain.LanguageChinese {
		prompt += " Answer in Chinese."
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, image.Type),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini analyze image: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty analysis")
	}
	return text, nil
}

// SuggestTitle implements domain.TitleSuggester with a single-shot call.
func (g *GeminiClient) SuggestTitle(ctx context.Context, messages []domain.Message, language domain.Language) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(BuildTitlePrompt(messages, language), genai.RoleUser),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini suggest title: %w", err)
	}

	title := strings.Trim(strings.TrimSpace(res.Text()), `"`)
	if title == "" {
		return "", fmt.Errorf("gemini returned empty title")
	}
	return title, nil
}

func toGenaiRole(role domain.Role) genai.Role {
	switch role {
	case domain.RoleModel:
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}
