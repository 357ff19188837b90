// Package smartroute embeds tool metadata into a vector column and answers
// "top-k tools for query" using an OpenAI-compatible embeddings provider
// and a pgvector-backed semantic index.
package smartroute

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Embedder turns text into vectors via an OpenAI-compatible endpoint.
type Embedder struct {
	client oai.Client
	model  string
}

// NewEmbedder builds an Embedder against systemConfig.smartRouting's
// {openaiApiBaseUrl, openaiApiKey, openaiApiEmbeddingModel}.
func NewEmbedder(baseURL, apiKey, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("smartroute: embeddings api key must not be empty")
	}
	if model == "" {
		model = string(oai.EmbeddingModelTextEmbedding3Small)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Embedder{client: oai.NewClient(opts...), model: model}, nil
}

// Embed returns the embedding vector for one piece of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("smartroute: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("smartroute: empty embedding response")
	}
	return float64ToFloat32(resp.Data[0].Embedding), nil
}

// Dimensions returns the vector length for e's model.
func (e *Embedder) Dimensions() int {
	return modelDimensions(e.model)
}

// ModelID returns the embedding model name.
func (e *Embedder) ModelID() string { return e.model }

func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	default:
		return 1536
	}
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// ToolEmbeddingText renders the text a tool is embedded from:
// "{server}.{name}: {description}\n{input-schema-summary}".
func ToolEmbeddingText(server, name, description string, inputSchema map[string]any) string {
	summary := summarizeSchema(inputSchema)
	return fmt.Sprintf("%s.%s: %s\n%s", server, name, description, summary)
}

func summarizeSchema(schema map[string]any) string {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	return "params: " + strings.Join(names, ", ")
}
