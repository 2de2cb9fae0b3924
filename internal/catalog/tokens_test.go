package catalog

import "testing"

// TestNewCounter_UnknownModel verifies counter construction refuses
// names the catalog does not know.
func TestNewCounter_UnknownModel(t *testing.T) {
	if _, err := NewCounter("made-up-model"); err == nil {
		t.Error("NewCounter(unknown) expected error, got nil")
	}
}

// TestCounter_GPTExact verifies GPT-family counts use a real codec.
func TestCounter_GPTExact(t *testing.T) {
	c, err := NewCounter("gpt-4o")
	if err != nil {
		t.Fatalf("NewCounter(gpt-4o) error: %v", err)
	}
	n, approximate := c.Count("hello world")
	if approximate {
		t.Error("Count flagged approximate for a GPT-family model")
	}
	if n <= 0 {
		t.Errorf("Count = %d, want > 0", n)
	}
}

// TestCounter_FallbackApproximate verifies non-GPT families estimate
// and say so.
func TestCounter_FallbackApproximate(t *testing.T) {
	c, err := NewCounter("gemini-2.5-flash")
	if err != nil {
		t.Fatalf("NewCounter(gemini alias) error: %v", err)
	}
	n, approximate := c.Count("one two three four")
	if !approximate {
		t.Error("Count not flagged approximate for a Gemini model")
	}
	// 4 words × 1.3 rounds up to 6.
	if n != 6 {
		t.Errorf("Count = %d, want 6", n)
	}
}

// TestEstimateTokens verifies the fallback math.
func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "whitespace only", text: "   \n\t ", want: 0},
		{name: "single word", text: "hi", want: 2},
		{name: "ten words", text: "a b c d e f g h i j", want: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimateTokens(tt.text); got != tt.want {
				t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}
