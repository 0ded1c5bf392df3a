package tokenizer

import "unicode/utf8"

// wordPiece splits a word greedily into the longest vocab prefixes.
// A word with any unmatched remainder becomes a single unk token.
func (t *Tokenizer) wordPiece(word string, dst []string) []string {
	if utf8.RuneCountInString(word) > t.cfg.MaxInputChars {
		return append(dst, t.cfg.UnkToken)
	}
	mark := len(dst)
	start := 0
	for start < len(word) {
		end := len(word)
		match := ""
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = t.cfg.SubwordPrefix + sub
			}
			if _, ok := t.cfg.Vocab[sub]; ok {
				match = sub
				break
			}
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if match == "" {
			return append(dst[:mark], t.cfg.UnkToken)
		}
		dst = append(dst, match)
		start = end
	}
	return dst
}
