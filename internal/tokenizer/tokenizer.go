// Package tokenizer implements BERT-style WordPiece tokenization from a
// HF tokenizer.json, with batch padding.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"
)

// Encoding is the tokenized form of one sequence.
type Encoding struct {
	IDs           []int
	TypeIDs       []int
	Tokens        []string
	AttentionMask []int
}

// Len returns the number of positions including padding.
func (e Encoding) Len() int { return len(e.IDs) }

// Tokenizer is safe for concurrent use after construction.
type Tokenizer struct {
	cfg     Config
	norm    normalizer
	decoder []string
	unkID   int
	special []string // longest first
}

// New builds a tokenizer from a parsed config.
func New(cfg Config) (*Tokenizer, error) {
	if len(cfg.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocab is empty")
	}
	unkID, ok := cfg.Vocab[cfg.UnkToken]
	if !ok {
		return nil, fmt.Errorf("unk token %q not in vocab", cfg.UnkToken)
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = 100
	}
	maxID := -1
	for _, id := range cfg.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("negative token id %d", id)
		}
		maxID = max(maxID, id)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range cfg.Vocab {
		decoder[id] = tok
	}
	for _, id := range append(append([]int(nil), cfg.Prefix...), cfg.Suffix...) {
		if id < 0 || id > maxID {
			return nil, fmt.Errorf("template token id %d outside vocab", id)
		}
	}

	special := make([]string, 0, len(cfg.SpecialTokens))
	for s := range cfg.SpecialTokens {
		if s != "" {
			special = append(special, s)
		}
	}
	sort.Slice(special, func(i, j int) bool {
		if len(special[i]) != len(special[j]) {
			return len(special[i]) > len(special[j])
		}
		return special[i] < special[j]
	})

	return &Tokenizer{
		cfg: cfg,
		norm: normalizer{
			cleanText:    cfg.CleanText,
			chineseChars: cfg.HandleChineseChars,
			stripAccents: cfg.StripAccents,
			lowercase:    cfg.Lowercase,
		},
		decoder: decoder,
		unkID:   unkID,
		special: special,
	}, nil
}

// Encode tokenizes one sequence without padding.
func (t *Tokenizer) Encode(text string) (Encoding, error) {
	var tokens []string
	for _, part := range t.splitSpecials(text) {
		if part.special {
			tokens = append(tokens, part.text)
			continue
		}
		for _, w := range preTokenize(t.norm.normalize(part.text)) {
			tokens = t.wordPiece(w, tokens)
		}
	}

	if limit := t.cfg.MaxLength; limit > 0 {
		room := limit - len(t.cfg.Prefix) - len(t.cfg.Suffix)
		if room < 0 {
			return Encoding{}, fmt.Errorf("max length %d shorter than template", limit)
		}
		if len(tokens) > room {
			tokens = tokens[:room]
		}
	}

	n := len(t.cfg.Prefix) + len(tokens) + len(t.cfg.Suffix)
	enc := Encoding{
		IDs:           make([]int, 0, n),
		TypeIDs:       make([]int, n),
		Tokens:        make([]string, 0, n),
		AttentionMask: make([]int, n),
	}
	for _, id := range t.cfg.Prefix {
		enc.IDs = append(enc.IDs, id)
		enc.Tokens = append(enc.Tokens, t.decoder[id])
	}
	for _, tok := range tokens {
		id, ok := t.cfg.Vocab[tok]
		if !ok {
			id, tok = t.unkID, t.cfg.UnkToken
		}
		enc.IDs = append(enc.IDs, id)
		enc.Tokens = append(enc.Tokens, tok)
	}
	for _, id := range t.cfg.Suffix {
		enc.IDs = append(enc.IDs, id)
		enc.Tokens = append(enc.Tokens, t.decoder[id])
	}
	for i := range enc.AttentionMask {
		enc.AttentionMask[i] = 1
	}
	return enc, nil
}

// EncodeBatch tokenizes texts in order and right-pads every encoding to
// the longest one.
func (t *Tokenizer) EncodeBatch(texts []string) ([]Encoding, error) {
	out := make([]Encoding, len(texts))
	longest := 0
	for i, text := range texts {
		enc, err := t.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("encode sequence %d: %w", i, err)
		}
		out[i] = enc
		longest = max(longest, enc.Len())
	}
	for i := range out {
		t.pad(&out[i], longest)
	}
	return out, nil
}

func (t *Tokenizer) pad(enc *Encoding, length int) {
	for enc.Len() < length {
		enc.IDs = append(enc.IDs, t.cfg.PadID)
		enc.TypeIDs = append(enc.TypeIDs, t.cfg.PadTypeID)
		enc.Tokens = append(enc.Tokens, t.cfg.PadToken)
		enc.AttentionMask = append(enc.AttentionMask, 0)
	}
}

// Decode joins tokens back into text, merging subword continuations and
// dropping special tokens.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		tok := t.decoder[id]
		if _, ok := t.cfg.SpecialTokens[tok]; ok {
			continue
		}
		if p := t.cfg.SubwordPrefix; p != "" && strings.HasPrefix(tok, p) {
			b.WriteString(tok[len(p):])
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String(), nil
}

// VocabSize returns one past the largest token id.
func (t *Tokenizer) VocabSize() int { return len(t.decoder) }

// PadID returns the id used for padding.
func (t *Tokenizer) PadID() int { return t.cfg.PadID }

// TokenString returns the string for a token id when available.
func (t *Tokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

type textPart struct {
	text    string
	special bool
}

// splitSpecials isolates special tokens so they bypass normalization.
func (t *Tokenizer) splitSpecials(text string) []textPart {
	if len(t.special) == 0 {
		return []textPart{{text: text}}
	}
	var parts []textPart
	start := 0
	for i := 0; i < len(text); {
		matched := ""
		for _, s := range t.special {
			if strings.HasPrefix(text[i:], s) {
				matched = s
				break
			}
		}
		if matched == "" {
			i++
			continue
		}
		if start < i {
			parts = append(parts, textPart{text: text[start:i]})
		}
		parts = append(parts, textPart{text: matched, special: true})
		i += len(matched)
		start = i
	}
	if start < len(text) {
		parts = append(parts, textPart{text: text[start:]})
	}
	return parts
}
