package tokens

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter counts model tokens for a text.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter picks the encoding used by the given chat model family.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.Get(encodingFor(model))
	if err != nil {
		return nil, errors.Wrap(err, "tokens: load codec")
	}
	return &Counter{codec: codec}, nil
}

func encodingFor(model string) tokenizer.Encoding {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5-turbo"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.Cl100kBase
	}
}

// Count returns the token count of text, or zero when encoding fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil || text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}
