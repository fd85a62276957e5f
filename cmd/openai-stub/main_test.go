package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/searchgpt/internal/llm"
)

func newTestClient(t *testing.T) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(newMux("stub-model"))
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestStub_ChatCitesFirstSource(t *testing.T) {
	c := newTestClient(t)
	prompt := "Web search results:\n\n[2] \"Rayleigh scattering favours blue.\"\nURL: https://x\n\nQuery: why blue\n"
	resp, err := c.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "stub-model",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	got := resp.Choices[0].Message.Content
	if !strings.Contains(got, "Rayleigh") || !strings.HasSuffix(got, "[2]") {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestStub_CompletionsAndModels(t *testing.T) {
	c := newTestClient(t)
	resp, err := c.CreateCompletion(context.Background(), openai.CompletionRequest{Model: "stub-model", Prompt: "Query: nothing\n"})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if !strings.Contains(resp.Choices[0].Text, "No sources") {
		t.Fatalf("unexpected text %q", resp.Choices[0].Text)
	}
	models, err := c.ListModels(context.Background())
	if err != nil || len(models.Models) != 1 || models.Models[0].ID != "stub-model" {
		t.Fatalf("models: %+v err=%v", models, err)
	}
}

func TestStub_GooseAIEngineRoute(t *testing.T) {
	srv := httptest.NewServer(newMux("stub-model"))
	t.Cleanup(srv.Close)
	p := llm.NewGooseAI(srv.URL+"/v1", "test", "gpt-neo-20b", srv.Client())
	resp, err := p.CreateCompletion(context.Background(), openai.CompletionRequest{Model: "gpt-neo-20b", Prompt: "Query: nothing\n"})
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if !strings.Contains(resp.Choices[0].Text, "No sources") {
		t.Fatalf("unexpected text %q", resp.Choices[0].Text)
	}
}

func TestStub_EmbeddingsAreDeterministic(t *testing.T) {
	c := newTestClient(t)
	resp, err := c.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
		Input: []string{"blue sky", "blue sky", "green grass"},
		Model: openai.AdaEmbeddingV2,
	})
	if err != nil {
		t.Fatalf("embeddings: %v", err)
	}
	if len(resp.Data) != 3 || len(resp.Data[0].Embedding) != embeddingDims {
		t.Fatalf("unexpected shape: %d", len(resp.Data))
	}
	for i := range resp.Data[0].Embedding {
		if resp.Data[0].Embedding[i] != resp.Data[1].Embedding[i] {
			t.Fatalf("same input must embed identically")
		}
	}
}
