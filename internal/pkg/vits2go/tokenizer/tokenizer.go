// Package tokenizer turns utterance text into model input id sequences.
package tokenizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"vits2go/internal/pkg/vits2go/engine"
	"vits2go/internal/pkg/vits2go/phonemizer"
)

// TokenSequence is one framed encoder input.
type TokenSequence []int64

type Options struct {
	// AddBlank interleaves the pad symbol between phonemes.
	AddBlank bool
	// MaxTokens bounds the phoneme ids per sequence; 0 means unbounded.
	MaxTokens int
}

type Tokenizer struct {
	symbols    *SymbolTable
	phonemizer phonemizer.Phonemizer
	opts       Options
}

func New(symbols *SymbolTable, p phonemizer.Phonemizer, opts Options) *Tokenizer {
	return &Tokenizer{symbols: symbols, phonemizer: p, opts: opts}
}

func (t *Tokenizer) Symbols() *SymbolTable {
	return t.symbols
}

// Tokenize phonemizes text clause by clause and returns one or more framed
// sequences in utterance order. It never returns an empty result without an
// error.
func (t *Tokenizer) Tokenize(ctx context.Context, text, voice string) ([]TokenSequence, error) {
	logger := zerolog.Ctx(ctx)

	var clauses []clauseIDs
	for _, c := range splitClauses(text) {
		var phonemes string
		if c.text != "" {
			ph, err := t.phonemizer.Phonemize(ctx, c.text, voice)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: failed to phonemize %q: %w", engine.ErrTokenization, c.text, err)
			}
			phonemes = strings.TrimSpace(ph)
		}
		ids, unknown := t.lookup(phonemes)
		punct, unknownPunct := t.lookup(c.punct)
		unknown = append(unknown, unknownPunct...)
		if len(unknown) > 0 {
			logger.Debug().Strs("symbols", unknown).Str("clause", c.text).Msg("Skipping unknown phoneme symbols")
		}
		switch {
		case len(ids) > 0:
			clauses = append(clauses, clauseIDs{ids: append(ids, punct...), phonemes: len(ids)})
		case len(clauses) > 0:
			// Punctuation-only clauses close the previous clause.
			last := &clauses[len(clauses)-1]
			last.ids = append(last.ids, punct...)
		}
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: no phonemes for %q", engine.ErrTokenization, text)
	}

	groups := t.group(clauses)
	seqs := make([]TokenSequence, len(groups))
	for i, g := range groups {
		seqs[i] = t.frame(g)
	}
	return seqs, nil
}

func (t *Tokenizer) lookup(phonemes string) ([]int64, []string) {
	var (
		ids     []int64
		unknown []string
	)
	for _, r := range phonemes {
		sym := string(r)
		if id, ok := t.symbols.ID(sym); ok {
			ids = append(ids, id)
		} else {
			unknown = append(unknown, sym)
		}
	}
	return ids, unknown
}

// clauseIDs holds the ids of one clause: phonemes first, then the ids of
// its closing punctuation.
type clauseIDs struct {
	ids      []int64
	phonemes int
}

// group packs clauses into runs of at most MaxTokens ids, separating
// clauses within a run by the space symbol. A clause longer than MaxTokens
// is cut into MaxTokens pieces; every piece keeps at least one phoneme and
// punctuation past the last piece's limit is dropped.
func (t *Tokenizer) group(clauses []clauseIDs) [][]int64 {
	space, hasSpace := t.symbols.ID(SpaceSymbol)
	limit := t.opts.MaxTokens

	var groups [][]int64
	var cur []int64
	for _, c := range clauses {
		ids := c.ids
		if limit > 0 && len(ids) > limit {
			if len(cur) > 0 {
				groups = append(groups, cur)
				cur = nil
			}
			phonemes := c.phonemes
			for len(ids) > limit && phonemes > limit {
				groups = append(groups, ids[:limit])
				ids = ids[limit:]
				phonemes -= limit
			}
			if len(ids) > limit {
				ids = ids[:limit]
			}
		}
		need := len(ids)
		if len(cur) > 0 && hasSpace {
			need++
		}
		if limit > 0 && len(cur) > 0 && len(cur)+need > limit {
			groups = append(groups, cur)
			cur = nil
		}
		if len(cur) > 0 && hasSpace {
			cur = append(cur, space)
		}
		cur = append(cur, ids...)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// frame wraps ids as [bos, pad, p1, pad, ..., pN, pad, eos] when blanks are
// enabled and [bos, p1, ..., pN, eos] otherwise. Reserved symbols missing
// from the table are left out.
func (t *Tokenizer) frame(ids []int64) TokenSequence {
	bos, hasBOS := t.symbols.ID(BOSSymbol)
	eos, hasEOS := t.symbols.ID(EOSSymbol)
	pad, hasPad := t.symbols.ID(PadSymbol)
	blank := t.opts.AddBlank && hasPad

	seq := make(TokenSequence, 0, 2*len(ids)+3)
	if hasBOS {
		seq = append(seq, bos)
	}
	if blank {
		seq = append(seq, pad)
	}
	for _, id := range ids {
		seq = append(seq, id)
		if blank {
			seq = append(seq, pad)
		}
	}
	if hasEOS {
		seq = append(seq, eos)
	}
	return seq
}

type clause struct {
	text  string
	punct string
}

func isClausePunct(r rune) bool {
	switch r {
	case ',', ';', ':', '.', '!', '?':
		return true
	}
	return false
}

// splitClauses cuts text after each run of clause punctuation. The
// punctuation run is kept with the clause it ends.
func splitClauses(text string) []clause {
	var out []clause
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isClausePunct(runes[i]) {
			continue
		}
		j := i
		for j < len(runes) && isClausePunct(runes[j]) {
			j++
		}
		out = append(out, clause{
			text:  strings.TrimSpace(string(runes[start:i])),
			punct: string(runes[i:j]),
		})
		start = j
		i = j - 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, clause{text: rest})
	}
	return out
}
