// Package synth asks a language model for a cited answer built only from
// ranked source sentences.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/searchgpt/internal/llm"
	"github.com/hyperifyio/searchgpt/internal/rank"
)

// Input bundles what the model sees.
type Input struct {
	Query       string
	Sources     []rank.Sentence
	Model       string
	Provider    string
	Temperature float32
	MaxTokens   int
	// Today is written into the prompt; zero means time.Now.
	Today time.Time
}

// Synthesizer calls the LLM to produce the answer text.
type Synthesizer struct {
	Client llm.Client
	// SystemPrompt, when non-empty, overrides the default system message.
	SystemPrompt string
	// RetryDelay is slept before the single retry; zero means 100ms.
	RetryDelay time.Duration
}

// ErrNoSubstantiveBody indicates the model produced no usable answer.
var ErrNoSubstantiveBody = errors.New("no substantive body")

const defaultSystemPrompt = "You are a helpful search assistant. Answer only from the provided search results and cite them with bracketed numbers like [1]. If the results do not answer the query, say so."

// Synthesize returns the answer text. Providers that only serve the
// completions endpoint get the system and user messages as one prompt.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (string, error) {
	if s.Client == nil || strings.TrimSpace(in.Model) == "" {
		return "", errors.New("synthesizer not configured")
	}
	system := defaultSystemPrompt
	if strings.TrimSpace(s.SystemPrompt) != "" {
		system = s.SystemPrompt
	}
	user := BuildPrompt(in)

	call := func() (string, error) {
		if completer, ok := s.Client.(llm.Completer); ok && in.Provider == llm.ProviderGooseAI {
			return s.complete(ctx, completer, system+"\n\n"+user, in)
		}
		return s.chat(ctx, system, user, in)
	}
	out, err := call()
	if err != nil && !errors.Is(err, ErrNoSubstantiveBody) {
		log.Warn().Err(err).Str("model", in.Model).Msg("answer call failed; retrying once")
		delay := s.RetryDelay
		if delay <= 0 {
			delay = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		out, err = call()
		if err != nil {
			return "", fmt.Errorf("answer call (after retry): %w", err)
		}
	}
	return out, err
}

func (s *Synthesizer) chat(ctx context.Context, system, user string, in Input) (string, error) {
	resp, err := s.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: in.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		N:           1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoSubstantiveBody
	}
	return nonEmpty(resp.Choices[0].Message.Content)
}

func (s *Synthesizer) complete(ctx context.Context, c llm.Completer, prompt string, in Input) (string, error) {
	resp, err := c.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       in.Model,
		Prompt:      prompt,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		N:           1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoSubstantiveBody
	}
	return nonEmpty(resp.Choices[0].Text)
}

func nonEmpty(s string) (string, error) {
	out := strings.TrimSpace(s)
	if out == "" {
		return "", ErrNoSubstantiveBody
	}
	return out, nil
}

// BuildPrompt lays out the numbered sources followed by the instructions
// and the query. Sentences sharing a URLID are grouped under one number.
func BuildPrompt(in Input) string {
	today := in.Today
	if today.IsZero() {
		today = time.Now()
	}
	var sb strings.Builder
	sb.WriteString("Web search results:\n\n")
	order, grouped := groupByURL(in.Sources)
	for _, id := range order {
		src := grouped[id]
		sb.WriteString(fmt.Sprintf("[%d] \"%s\"\nURL: %s\n\n", id, strings.Join(src.texts, " "), src.url))
	}
	sb.WriteString("Current date: ")
	sb.WriteString(today.Format("2006-01-02"))
	sb.WriteString("\n\nInstructions: Using the provided web search results, write a comprehensive reply to the given query. ")
	sb.WriteString("Cite results using [number] notation after the sentence they support. ")
	sb.WriteString("If the results refer to multiple subjects with the same name, write separate answers for each subject.\n")
	sb.WriteString("Query: ")
	sb.WriteString(in.Query)
	sb.WriteString("\nReply in the language of the query.")
	return sb.String()
}

type groupedSource struct {
	url   string
	texts []string
}

func groupByURL(sources []rank.Sentence) ([]int, map[int]*groupedSource) {
	var order []int
	grouped := map[int]*groupedSource{}
	for _, s := range sources {
		g, ok := grouped[s.URLID]
		if !ok {
			g = &groupedSource{url: s.URL}
			grouped[s.URLID] = g
			order = append(order, s.URLID)
		}
		g.texts = append(g.texts, s.Text)
	}
	return order, grouped
}
