// Command openai-stub serves a tiny OpenAI-compatible API for offline runs:
// model listing, chat and plain completions that cite the first source in
// the prompt, and deterministic bag-of-words embeddings.
package main

import (
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const embeddingDims = 64

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content
		writeJSON(w, map[string]any{
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": answerFor(prompt)}},
			},
		})
	})
	completions := func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{
			"object":  "text_completion",
			"model":   req.Model,
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "text": answerFor(req.Prompt)}},
		})
	}
	mux.HandleFunc("/v1/completions", completions)
	// GooseAI style: /v1/engines/{engine}/completions
	mux.HandleFunc("/v1/engines/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/completions") {
			http.NotFound(w, r)
			return
		}
		completions(w, r)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, 0, len(req.Input))
		for i, in := range req.Input {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": embed(in)})
		}
		writeJSON(w, map[string]any{"object": "list", "model": req.Model, "data": data})
	})
	return mux
}

var sourceLine = regexp.MustCompile(`(?m)^\[([0-9]+)\] "(.*)"$`)
var queryLine = regexp.MustCompile(`(?m)^Query: (.*)$`)

// answerFor quotes the first source of a prompt and cites it.
func answerFor(prompt string) string {
	q := "your question"
	if m := queryLine.FindStringSubmatch(prompt); m != nil {
		q = strings.TrimSpace(m[1])
	}
	m := sourceLine.FindStringSubmatch(prompt)
	if m == nil {
		return "No sources were provided for " + q + "."
	}
	text := m[2]
	if len(text) > 200 {
		text = text[:200]
	}
	return "About " + q + ": " + text + " [" + m[1] + "]"
}

func embed(s string) []float32 {
	v := make([]float64, embeddingDims)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%embeddingDims]++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, embeddingDims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
