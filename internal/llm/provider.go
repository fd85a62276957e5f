// Package llm adapts OpenAI-compatible backends to the small interfaces the
// answer pipeline needs.
package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Provider names accepted in configuration and in the search form.
const (
	ProviderOpenAI  = "openai"
	ProviderGooseAI = "goose_ai"
)

// DefaultGooseAIBaseURL is GooseAI's OpenAI-compatible API root.
const DefaultGooseAIBaseURL = "https://api.goose.ai/v1"

// Client is the minimal interface needed by core logic to call a chat model.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Completer is implemented by backends that expose the plain completions
// endpoint. GooseAI only serves completions.
type Completer interface {
	CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error)
}

// Embedder is implemented by backends that can embed text.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// ModelLister is an optional capability that allows listing available models.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to every interface above.
type OpenAIProvider struct {
	Inner *openai.Client
}

// New builds a provider for an OpenAI-compatible server. An empty baseURL
// keeps the library default (api.openai.com).
func New(baseURL, apiKey string, hc *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if hc != nil {
		cfg.HTTPClient = hc
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

// NewGooseAI builds a provider whose completions go to GooseAI's per-engine
// route, <baseURL>/engines/<engine>/completions.
func NewGooseAI(baseURL, apiKey, engine string, hc *http.Client) *OpenAIProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGooseAIBaseURL
	}
	root := strings.TrimRight(baseURL, "/")
	return New(root+"/engines/"+url.PathEscape(engine), apiKey, hc)
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateCompletion(ctx context.Context, request openai.CompletionRequest) (openai.CompletionResponse, error) {
	return p.Inner.CreateCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return p.Inner.CreateEmbeddings(ctx, conv)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}
