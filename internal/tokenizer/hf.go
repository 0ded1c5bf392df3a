package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

type hfNormalizer struct {
	Type               string         `json:"type"`
	CleanText          *bool          `json:"clean_text"`
	HandleChineseChars *bool          `json:"handle_chinese_chars"`
	StripAccents       *bool          `json:"strip_accents"`
	Lowercase          *bool          `json:"lowercase"`
	Normalizers        []hfNormalizer `json:"normalizers"`
}

type hfTokenizerJSON struct {
	Normalizer *hfNormalizer `json:"normalizer"`
	Model struct {
		Type                    string         `json:"type"`
		Vocab                   map[string]int `json:"vocab"`
		UnkToken                string         `json:"unk_token"`
		ContinuingSubwordPrefix *string        `json:"continuing_subword_prefix"`
		MaxInputCharsPerWord    int            `json:"max_input_chars_per_word"`
	} `json:"model"`
	PostProcessor *struct {
		Type   string `json:"type"`
		CLS    []any  `json:"cls"`
		SEP    []any  `json:"sep"`
		Single []struct {
			SpecialToken *struct {
				ID string `json:"id"`
			} `json:"SpecialToken"`
			Sequence *struct {
				ID string `json:"id"`
			} `json:"Sequence"`
		} `json:"single"`
		SpecialTokens map[string]struct {
			IDs []int `json:"ids"`
		} `json:"special_tokens"`
	} `json:"post_processor"`
	Padding *struct {
		PadID     int    `json:"pad_id"`
		PadTypeID int    `json:"pad_type_id"`
		PadToken  string `json:"pad_token"`
	} `json:"padding"`
	Truncation *struct {
		MaxLength int `json:"max_length"`
	} `json:"truncation"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// LoadFile reads a HF tokenizer.json from disk.
func LoadFile(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(data)
}

// LoadBytes parses a HF tokenizer.json with a WordPiece model.
func LoadBytes(data []byte) (*Tokenizer, error) {
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// ParseConfig decodes the parts of tokenizer.json the encoder needs.
func ParseConfig(data []byte) (Config, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return Config{}, fmt.Errorf("parse tokenizer json: %w", err)
	}
	if !strings.EqualFold(tj.Model.Type, "WordPiece") {
		return Config{}, fmt.Errorf("unsupported tokenizer model: %q", tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return Config{}, fmt.Errorf("tokenizer vocab is empty")
	}

	cfg := DefaultConfig()
	cfg.Vocab = tj.Model.Vocab
	if tj.Model.UnkToken != "" {
		cfg.UnkToken = tj.Model.UnkToken
	}
	if tj.Model.ContinuingSubwordPrefix != nil {
		cfg.SubwordPrefix = *tj.Model.ContinuingSubwordPrefix
	}
	if tj.Model.MaxInputCharsPerWord > 0 {
		cfg.MaxInputChars = tj.Model.MaxInputCharsPerWord
	}

	// Without a normalizer the text is used as is.
	cfg.Lowercase, cfg.StripAccents, cfg.CleanText, cfg.HandleChineseChars = false, false, false, false
	if tj.Normalizer != nil {
		if err := applyNormalizer(&cfg, tj.Normalizer); err != nil {
			return Config{}, err
		}
	}

	cfg.SpecialTokens = make(map[string]int)
	for _, at := range tj.AddedTokens {
		if at.Special {
			cfg.SpecialTokens[at.Content] = at.ID
		}
		if _, ok := cfg.Vocab[at.Content]; !ok {
			cfg.Vocab[at.Content] = at.ID
		}
	}

	if err := applyPostProcessor(&cfg, &tj); err != nil {
		return Config{}, err
	}

	if p := tj.Padding; p != nil {
		cfg.PadID = p.PadID
		cfg.PadTypeID = p.PadTypeID
		if p.PadToken != "" {
			cfg.PadToken = p.PadToken
		}
	} else if id, ok := cfg.Vocab[cfg.PadToken]; ok {
		cfg.PadID = id
	}
	if tj.Truncation != nil {
		cfg.MaxLength = tj.Truncation.MaxLength
	}
	return cfg, nil
}

func applyNormalizer(cfg *Config, n *hfNormalizer) error {
	switch n.Type {
	case "BertNormalizer":
		cfg.CleanText = boolOr(n.CleanText, true)
		cfg.HandleChineseChars = boolOr(n.HandleChineseChars, true)
		cfg.Lowercase = boolOr(n.Lowercase, true)
		// A null strip_accents follows lowercase.
		cfg.StripAccents = boolOr(n.StripAccents, cfg.Lowercase)
	case "Sequence":
		for i := range n.Normalizers {
			if err := applyNormalizer(cfg, &n.Normalizers[i]); err != nil {
				return err
			}
		}
	case "Lowercase":
		cfg.Lowercase = true
	case "StripAccents":
		cfg.StripAccents = true
	case "NFD":
		// Accent stripping decomposes on its own.
	default:
		return fmt.Errorf("unsupported tokenizer normalizer: %q", n.Type)
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func applyPostProcessor(cfg *Config, tj *hfTokenizerJSON) error {
	pp := tj.PostProcessor
	if pp == nil {
		return nil
	}
	switch pp.Type {
	case "BertProcessing":
		cls, err := processingToken(pp.CLS)
		if err != nil {
			return fmt.Errorf("post_processor cls: %w", err)
		}
		sep, err := processingToken(pp.SEP)
		if err != nil {
			return fmt.Errorf("post_processor sep: %w", err)
		}
		cfg.Prefix, cfg.Suffix = []int{cls}, []int{sep}
	case "TemplateProcessing":
		seen := false
		for _, piece := range pp.Single {
			switch {
			case piece.Sequence != nil:
				seen = true
			case piece.SpecialToken != nil:
				st, ok := pp.SpecialTokens[piece.SpecialToken.ID]
				if !ok {
					return fmt.Errorf("post_processor: special token %q not defined", piece.SpecialToken.ID)
				}
				if seen {
					cfg.Suffix = append(cfg.Suffix, st.IDs...)
				} else {
					cfg.Prefix = append(cfg.Prefix, st.IDs...)
				}
			}
		}
	}
	return nil
}

// processingToken decodes a ["[CLS]", 101] pair.
func processingToken(raw []any) (int, error) {
	if len(raw) != 2 {
		return 0, fmt.Errorf("expected [token, id], got %v", raw)
	}
	id, ok := raw[1].(float64)
	if !ok {
		return 0, fmt.Errorf("token id %v is not a number", raw[1])
	}
	return int(id), nil
}
