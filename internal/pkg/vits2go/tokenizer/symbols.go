package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"vits2go/internal/pkg/vits2go/engine"
)

// Reserved symbols of piper-style symbol tables.
const (
	PadSymbol   = "_"
	BOSSymbol   = "^"
	EOSSymbol   = "$"
	SpaceSymbol = " "
)

// SymbolTable maps phoneme symbols to model input ids.
type SymbolTable struct {
	tokenToID map[string]int64
	idToToken map[int64]string
}

func NewSymbolTable(symbols map[string]int64) *SymbolTable {
	t := &SymbolTable{
		tokenToID: make(map[string]int64, len(symbols)),
		idToToken: make(map[int64]string, len(symbols)),
	}
	for sym, id := range symbols {
		t.tokenToID[sym] = id
		t.idToToken[id] = sym
	}
	return t
}

// LoadSymbolTable reads a tokens.txt file of "<symbol> <id>" lines. The id
// is the last field, so a line such as " 3" defines the space symbol.
func LoadSymbolTable(path string) (*SymbolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open tokens file: %v", engine.ErrConfig, err)
	}
	defer f.Close()

	symbols := make(map[string]int64)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		i := strings.LastIndexByte(text, ' ')
		if i < 0 {
			return nil, fmt.Errorf("%w: tokens file %s line %d: missing id", engine.ErrConfig, path, line)
		}
		id, err := strconv.ParseInt(text[i+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: tokens file %s line %d: %v", engine.ErrConfig, path, line, err)
		}
		sym := text[:i]
		if sym == "" {
			sym = SpaceSymbol
		}
		symbols[sym] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read tokens file: %v", engine.ErrConfig, err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: tokens file %s is empty", engine.ErrConfig, path)
	}
	return NewSymbolTable(symbols), nil
}

func (t *SymbolTable) ID(symbol string) (int64, bool) {
	id, ok := t.tokenToID[symbol]
	return id, ok
}

func (t *SymbolTable) Symbol(id int64) (string, bool) {
	sym, ok := t.idToToken[id]
	return sym, ok
}

func (t *SymbolTable) Len() int {
	return len(t.tokenToID)
}
