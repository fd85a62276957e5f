package budget

import "testing"

func TestEstimateTokensFromChars(t *testing.T) {
	cases := []struct{ in, want int }{{0, 0}, {-3, 0}, {1, 1}, {4, 1}, {5, 2}, {400, 100}}
	for _, c := range cases {
		if got := EstimateTokensFromChars(c.in); got != c.want {
			t.Fatalf("EstimateTokensFromChars(%d)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestModelContextTokens(t *testing.T) {
	if got := ModelContextTokens("GPT-3.5-Turbo"); got != 16_385 {
		t.Fatalf("gpt-3.5-turbo: %d", got)
	}
	if got := ModelContextTokens("gpt-neo-20b"); got != 2_048 {
		t.Fatalf("gpt-neo-20b: %d", got)
	}
	if got := ModelContextTokens("my-model-32k"); got != 32_768 {
		t.Fatalf("suffix: %d", got)
	}
	if got := ModelContextTokens("unknown"); got != 4096 {
		t.Fatalf("default: %d", got)
	}
}

func TestRemainingContext_NeverNegative(t *testing.T) {
	if got := RemainingContext("gpt-neo-20b", 5000, 0); got != 0 {
		t.Fatalf("want 0, got %d", got)
	}
	// 2048 - 512 - 256 - 10
	if got := RemainingContext("gpt-neo-20b", 512, 10); got != 1270 {
		t.Fatalf("want 1270, got %d", got)
	}
}

func TestSourceChars(t *testing.T) {
	if got := SourceChars("gpt-3.5-turbo", 512, "", 3000); got != 3000 {
		t.Fatalf("configured limit should win on a large window, got %d", got)
	}
	small := SourceChars("gpt-neo-20b", 512, "", 100_000)
	if small != (2048-512-256)*CharsPerToken {
		t.Fatalf("window should cap the limit, got %d", small)
	}
	if got := SourceChars("gpt-neo-20b", 512, "", 0); got != small {
		t.Fatalf("no limit should use the window, got %d", got)
	}
	if got := SourceChars("gpt-neo-20b", 4096, "", 3000); got != 1 {
		t.Fatalf("exhausted window should leave one char, got %d", got)
	}
}
