// Package budget estimates how much source text fits into a model's
// context window next to the prompt scaffolding and the reserved answer.
package budget

import (
	"math"
	"strings"
)

// CharsPerToken is the rough English ratio used for estimates.
const CharsPerToken = 4

// EstimateTokensFromChars converts a character count into a token estimate,
// rounding up. The result is at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / CharsPerToken))
}

// EstimateTokens returns the estimated token count of s.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// ModelContextTokens returns the context window for a model name. Unknown
// models get a conservative 4096.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	switch {
	case strings.HasSuffix(name, "128k"):
		return 128_000
	case strings.HasSuffix(name, "32k"):
		return 32_768
	case strings.HasSuffix(name, "16k"):
		return 16_384
	case strings.HasPrefix(name, "gpt-4o"), strings.HasPrefix(name, "gpt-4-turbo"):
		return 128_000
	}
	return 4096
}

// HeadroomTokens is kept free for message framing and tokenizer drift: the
// larger of 5% of the window or 256 tokens.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 256 {
		return 256
	}
	return dyn
}

// RemainingContext returns the input tokens left after reserving output,
// headroom and promptTokens. Never negative.
func RemainingContext(modelName string, reservedForOutput, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	left := ModelContextTokens(modelName) - reservedForOutput - HeadroomTokens(modelName) - promptTokens
	if left < 0 {
		return 0
	}
	return left
}

// SourceChars caps a configured source length so that sources plus the
// fixed prompt text still fit. limit <= 0 means no configured cap, in which
// case the model window alone decides. The result is at least 1 so that
// the best ranked sentence always survives.
func SourceChars(modelName string, maxTokens int, fixedPrompt string, limit int) int {
	fit := RemainingContext(modelName, maxTokens, EstimateTokens(fixedPrompt)) * CharsPerToken
	if fit < 1 {
		fit = 1
	}
	if limit > 0 && limit < fit {
		return limit
	}
	return fit
}

var knownModelMax = map[string]int{
	"gpt-3.5-turbo":          16_385,
	"gpt-3.5-turbo-instruct": 4_096,
	"gpt-4":                  8_192,
	"gpt-4o":                 128_000,
	"gpt-4o-mini":            128_000,
	"text-davinci-003":       4_097,
	"gpt-neo-20b":            2_048,
	"gpt-j-6b":               2_048,
	"fairseq-13b":            2_048,
}
