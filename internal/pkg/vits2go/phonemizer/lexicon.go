package phonemizer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"vits2go/internal/pkg/vits2go/engine"
)

// Lexicon overrides the pronunciation of listed words and hands runs of
// unlisted words to a base phonemizer.
type Lexicon struct {
	base    Phonemizer
	entries map[string]string
	fold    cases.Caser
}

func NewLexicon(base Phonemizer, entries map[string]string) *Lexicon {
	l := &Lexicon{base: base, entries: make(map[string]string, len(entries)), fold: cases.Fold()}
	for word, phonemes := range entries {
		l.entries[l.fold.String(word)] = phonemes
	}
	return l
}

// LoadLexicon reads a lexicon file with one "word ph1 ph2 ..." entry per
// line. Blank lines and lines starting with '#' are ignored.
func LoadLexicon(path string, base Phonemizer) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open lexicon: %v", engine.ErrConfig, err)
	}
	defer f.Close()

	entries := make(map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: lexicon %s line %d has no phonemes", engine.ErrConfig, path, line)
		}
		entries[fields[0]] = strings.Join(fields[1:], "")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read lexicon: %v", engine.ErrConfig, err)
	}
	return NewLexicon(base, entries), nil
}

func (l *Lexicon) Len() int {
	return len(l.entries)
}

func (l *Lexicon) Phonemize(ctx context.Context, text, voice string) (string, error) {
	var (
		out     []string
		pending []string
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		ph, err := l.base.Phonemize(ctx, strings.Join(pending, " "), voice)
		if err != nil {
			return err
		}
		if ph != "" {
			out = append(out, ph)
		}
		pending = pending[:0]
		return nil
	}

	for _, word := range strings.Fields(text) {
		key := l.fold.String(strings.TrimFunc(word, unicode.IsPunct))
		if ph, ok := l.entries[key]; ok {
			if err := flush(); err != nil {
				return "", err
			}
			out = append(out, ph)
			continue
		}
		pending = append(pending, word)
	}
	if err := flush(); err != nil {
		return "", err
	}
	return strings.Join(out, " "), nil
}
