package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/clepho/clepho/internal/config"
)

// GeminiClient implements VisionClient and EmbeddingClient over the
// Gemini API, adapted from GeminiProvider.AnalyzePhoto: same
// resize-then-inline-data request shape, simplified to a single
// free-text completion (no JSON schema, no batch job submission) to
// match OpenAIClient's contract.
type GeminiClient struct {
	client     *genai.Client
	model      string
	embedModel string
	usage      Usage
	pricing    config.ModelPricing
	embedPrice config.RequestPricing
}

const defaultGeminiModel = "gemini-2.5-flash"
const defaultGeminiEmbedModel = "text-embedding-004"

func NewGeminiClient(ctx context.Context, apiKey, model, embedModel string, prices config.PricesConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if embedModel == "" {
		embedModel = defaultGeminiEmbedModel
	}
	return &GeminiClient{
		client:     client,
		model:      model,
		embedModel: embedModel,
		pricing:    prices.Models[model],
		embedPrice: prices.Models[embedModel].Standard,
	}, nil
}

func (c *GeminiClient) Usage() Usage { return c.usage }

// Describe resizes the image, sends it inline alongside prompt, and
// splits a trailing "TAGS: a, b, c" line off the response.
func (c *GeminiClient) Describe(ctx context.Context, imageData []byte, prompt string) (string, []string, error) {
	resized, err := ResizeImage(imageData, 800)
	if err != nil {
		return "", nil, fmt.Errorf("ai: resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", nil, fmt.Errorf("ai: gemini vision completion: %w", err)
	}
	if result.UsageMetadata != nil {
		c.trackChatUsage(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
	}

	content := result.Text()
	if content == "" {
		return "", nil, errors.New("ai: no response from gemini vision completion")
	}

	description, tags := splitTags(content)
	return description, tags, nil
}

// Embed calls Gemini's embedding endpoint and returns the vector as
// float32, matching the fixed-width byte sequence the Embedding row
// stores.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, string, error) {
	result, err := c.client.Models.EmbedContent(ctx, c.embedModel, []*genai.Content{
		{Parts: []*genai.Part{{Text: text}}},
	}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("ai: gemini embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, "", errors.New("ai: no embedding returned")
	}

	values := result.Embeddings[0].Values
	c.usage.InputTokens += len(strings.Fields(text))
	c.usage.TotalCost += float64(len(strings.Fields(text))) / 1_000_000 * c.embedPrice.Input

	vec := make([]float32, len(values))
	copy(vec, values)
	return vec, c.embedModel, nil
}

func (c *GeminiClient) trackChatUsage(inputTokens, outputTokens int64) {
	c.usage.InputTokens += int(inputTokens)
	c.usage.OutputTokens += int(outputTokens)
	c.usage.TotalCost += float64(inputTokens) / 1_000_000 * c.pricing.Standard.Input
	c.usage.TotalCost += float64(outputTokens) / 1_000_000 * c.pricing.Standard.Output
}
