package memory

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const tiktokenEncoding = "cl100k_base"

// Tiktoken counts tokens with the cl100k_base BPE used by GPT-4 class models.
type Tiktoken struct {
	tk *tiktoken.Tiktoken
}

func NewTiktoken() (*Tiktoken, error) {
	tk, err := tiktoken.GetEncoding(tiktokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", tiktokenEncoding, err)
	}
	return &Tiktoken{tk: tk}, nil
}

func (t *Tiktoken) Estimate(text string) int {
	return len(t.tk.Encode(text, nil, nil))
}
