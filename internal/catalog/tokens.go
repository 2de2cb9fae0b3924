package catalog

import (
	"fmt"
	"math"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for one model. The codec is chosen per family
// so repeated counts of the same text always agree. Families without a
// native encoding use a word-count estimate and report approximate.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter builds the token counter for model. GPT-family models get
// their tiktoken codec; everything else counts approximately.
func NewCounter(model string) (*Counter, error) {
	spec, err := Resolve(model)
	if err != nil {
		return nil, err
	}
	if spec.Family != FamilyGPT {
		return &Counter{}, nil
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("tokenizer codec for %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the token count for text and whether the count is an
// estimate rather than a real encoding.
func (c *Counter) Count(text string) (n int, approximate bool) {
	if c.codec == nil {
		return estimateTokens(text), true
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimateTokens(text), true
	}
	return n, false
}

// estimateTokens approximates a token count as word count × 1.3,
// rounded up.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 1.3))
}
