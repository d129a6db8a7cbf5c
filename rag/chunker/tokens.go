package chunker

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many tokens a piece of text costs against the
// embedding and generation backends.
type TokenCounter interface {
	Count(text string) int
}

// Estimator approximates token counts from character length. It matches
// the common 4-characters-per-token rule of thumb for English prose and
// needs no encoding tables, so it is the default counter.
type Estimator struct{}

// Count estimates the token count. Non-empty text costs at least one token.
func (Estimator) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// Tiktoken counts tokens with the cl100k_base BPE encoding used by the
// OpenAI embedding and chat models.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken loads the cl100k_base encoding. The first call may fetch
// the encoding tables, so callers that need fully offline operation
// should stay on Estimator.
func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the exact cl100k_base token count.
func (t *Tiktoken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
