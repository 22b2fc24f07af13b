package services

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken does not know.
const fallbackEncoding = "cl100k_base"

// TokenCounter measures text against the context budget.
type TokenCounter interface {
	Count(text string) int
}

// RuneCounter counts characters.
type RuneCounter struct{}

// Count returns the number of runes in text.
func (RuneCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

// TiktokenCounter counts BPE tokens for a model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter returns a counter for model, falling back to
// cl100k_base when the model has no registered encoding.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
