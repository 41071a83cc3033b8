// Package phonemizer converts text into phoneme strings.
package phonemizer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/neurlang/goruut/lib"
	"github.com/neurlang/goruut/models/requests"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"vits2go/internal/pkg/vits2go/engine"
)

// Phonemizer maps text in the language selected by voice to phonemes.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, voice string) (string, error)
}

// Goruut phonemizes with the goruut rule and dictionary models.
type Goruut struct {
	mu sync.Mutex
	p  *lib.Phonemizer
}

func NewGoruut() *Goruut {
	return &Goruut{
		p: lib.NewPhonemizer(nil),
	}
}

func (g *Goruut) Phonemize(ctx context.Context, text, voice string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lang, err := GoruutLanguage(voice)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	resp := g.p.Sentence(requests.PhonemizeSentence{
		Language: lang,
		Sentence: text,
	})
	g.mu.Unlock()

	var result strings.Builder
	for i, word := range resp.Words {
		if i > 0 {
			result.WriteString(" ")
		}
		result.WriteString(word.Phonetic)
	}
	return result.String(), nil
}

// GoruutLanguage resolves a voice tag such as "en-us" to the English
// language name goruut expects.
func GoruutLanguage(voice string) (string, error) {
	tag, err := language.Parse(voice)
	if err != nil {
		return "", fmt.Errorf("%w: unknown voice %q: %v", engine.ErrTokenization, voice, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("%w: voice %q has no language", engine.ErrTokenization, voice)
	}
	name := display.English.Languages().Name(base)
	if name == "" {
		return "", fmt.Errorf("%w: no language name for voice %q", engine.ErrTokenization, voice)
	}
	return name, nil
}
