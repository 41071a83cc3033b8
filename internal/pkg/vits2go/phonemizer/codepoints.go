package phonemizer

import (
	"context"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Codepoints treats case-folded, decomposed characters as phonemes. It serves
// models trained on characters instead of IPA.
type Codepoints struct {
	fold cases.Caser
}

func NewCodepoints() *Codepoints {
	return &Codepoints{fold: cases.Fold()}
}

func (c *Codepoints) Phonemize(ctx context.Context, text, voice string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return norm.NFD.String(c.fold.String(text)), nil
}
