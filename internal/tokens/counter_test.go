package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tiktoken-go/tokenizer"
)

func TestEncodingFor(t *testing.T) {
	require.Equal(t, tokenizer.Cl100kBase, encodingFor("gpt-3.5-turbo"))
	require.Equal(t, tokenizer.Cl100kBase, encodingFor("gpt-4"))
	require.Equal(t, tokenizer.O200kBase, encodingFor("gpt-4o-mini"))
	require.Equal(t, tokenizer.Cl100kBase, encodingFor("unknown-model"))
}

func TestCount(t *testing.T) {
	c, err := NewCounter("gpt-3.5-turbo")
	require.NoError(t, err)
	require.Zero(t, c.Count(""))
	require.Positive(t, c.Count("The dress code is business casual."))
}

func TestCount_NilCounter(t *testing.T) {
	var c *Counter
	require.Zero(t, c.Count("hello"))
}
