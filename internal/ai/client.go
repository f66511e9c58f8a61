package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/clepho/clepho/internal/config"
)

// Usage tracks token usage and running cost for one client instance, so
// a caller can report per-run LLM spend without instrumenting every
// call site.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // USD
}

// VisionClient is the LLM vision-completion contract the core consumes:
// image bytes and a prompt in, a description out. Vendor-specific
// request/response shaping lives entirely behind this interface — the
// core never inspects the underlying wire format.
type VisionClient interface {
	Describe(ctx context.Context, imageData []byte, prompt string) (description string, tags []string, err error)
	Usage() Usage
}

// EmbeddingClient is the LLM text-embedding contract: text in, a
// fixed-width vector and the model name that produced it out, for
// storage as a Photo's Embedding row.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) (vector []float32, modelName string, err error)
	Usage() Usage
}

// OpenAIClient implements both VisionClient and EmbeddingClient over
// the OpenAI API, adapted from OpenAIProvider.AnalyzePhoto: same
// resize-then-base64-data-URL request shape, simplified to a single
// free-text completion (no JSON schema, no batch/retry machinery) since
// description generation is a per-photo, best-effort operation here
// rather than a bulk sort pipeline.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	embedModel string
	usage      Usage
	pricing    config.ModelPricing
	embedPrice config.RequestPricing
}

func NewOpenAIClient(apiKey, model, embedModel string, prices config.PricesConfig) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client:     &client,
		model:      model,
		embedModel: embedModel,
		pricing:    prices.Models[model],
		embedPrice: prices.Models[embedModel].Standard,
	}
}

func (c *OpenAIClient) Usage() Usage { return c.usage }

// Describe resizes the image to keep request cost bounded, sends it as
// a data URL alongside prompt, and splits a trailing "TAGS: a, b, c"
// line off the response into a tag list.
func (c *OpenAIClient) Describe(ctx context.Context, imageData []byte, prompt string) (string, []string, error) {
	resized, err := ResizeImage(imageData, 800)
	if err != nil {
		return "", nil, fmt.Errorf("ai: resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(prompt),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(300),
	})
	if err != nil {
		return "", nil, fmt.Errorf("ai: vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("ai: no response from vision completion")
	}

	c.trackChatUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	description, tags := splitTags(resp.Choices[0].Message.Content)
	return description, tags, nil
}

// Embed calls the embedding endpoint and returns the vector as
// float32, matching the fixed-width byte sequence the Embedding row
// stores.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, string, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embedModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, "", fmt.Errorf("ai: embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, "", errors.New("ai: no embedding returned")
	}

	c.usage.InputTokens += int(resp.Usage.PromptTokens)
	c.usage.TotalCost += float64(resp.Usage.PromptTokens) / 1_000_000 * c.embedPrice.Input

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, c.embedModel, nil
}

func (c *OpenAIClient) trackChatUsage(inputTokens, outputTokens int64) {
	c.usage.InputTokens += int(inputTokens)
	c.usage.OutputTokens += int(outputTokens)
	c.usage.TotalCost += float64(inputTokens) / 1_000_000 * c.pricing.Standard.Input
	c.usage.TotalCost += float64(outputTokens) / 1_000_000 * c.pricing.Standard.Output
}

// splitTags separates a trailing "TAGS: a, b, c" line from the rest of
// a vision response into a description and a tag list.
func splitTags(content string) (description string, tags []string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return content, nil
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	const prefix = "TAGS:"
	if !strings.HasPrefix(strings.ToUpper(last), prefix) {
		return strings.TrimSpace(content), nil
	}

	raw := strings.TrimSpace(last[len(prefix):])
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	description = strings.TrimSpace(strings.Join(lines[:len(lines)-1], "\n"))
	return description, tags
}
