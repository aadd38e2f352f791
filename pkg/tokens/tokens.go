package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the tokenizer of the downstream generation models.
const DefaultEncoding = "o200k_base"

// Counter counts tokens the way the downstream generation model does and can
// slice text on token boundaries. Implementations must be safe for
// concurrent use.
type Counter interface {
	Count(text string) int
	// Tail returns the suffix of text covering its final n tokens. If text
	// has fewer than n tokens, the whole text is returned.
	Tail(text string, n int) string
}

// TiktokenCounter implements Counter on a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a Counter for the given encoding name. An empty
// name selects DefaultEncoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Tail(text string, n int) string {
	if text == "" || n <= 0 {
		return ""
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= n {
		return text
	}
	return c.enc.Decode(ids[len(ids)-n:])
}
