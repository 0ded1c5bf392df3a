package tokenizer

// Config is the subset of a tokenizer.json that drives WordPiece encoding.
type Config struct {
	Lowercase          bool
	StripAccents       bool
	CleanText          bool
	HandleChineseChars bool

	UnkToken       string
	SubwordPrefix  string
	MaxInputChars  int
	Vocab          map[string]int
	SpecialTokens  map[string]int
	Prefix, Suffix []int // ids added around every sequence

	PadID     int
	PadTypeID int
	PadToken  string
	MaxLength int // 0 disables truncation
}

// DefaultConfig mirrors the normalization of bert-base-uncased.
func DefaultConfig() Config {
	return Config{
		Lowercase:          true,
		StripAccents:       true,
		CleanText:          true,
		HandleChineseChars: true,
		UnkToken:           "[UNK]",
		SubwordPrefix:      "##",
		MaxInputChars:      100,
		PadToken:           "[PAD]",
	}
}
