package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text with the tiktoken encoding used by
// the OpenAI embedding models. It implements ai.Tokenizer.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer loads the cl100k_base encoding.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(EncodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", EncodingName, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens. The cut is a hard
// truncate to the model's limit, never an error.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}
