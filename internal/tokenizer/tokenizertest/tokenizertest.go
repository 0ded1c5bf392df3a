// Package tokenizertest builds small WordPiece tokenizer.json fixtures.
package tokenizertest

import (
	"fmt"
	"strings"
)

// Words is the default fixture vocabulary after the four special tokens.
var Words = []string{"the", "cat", "dog", "sat", "un", "##aff", "##able", ",", ".", "!", "hello", "world", "cafe"}

// JSON returns a bert-base style tokenizer.json over [PAD]=0, [UNK]=1,
// [CLS]=2, [SEP]=3 followed by words.
func JSON(words ...string) []byte {
	if len(words) == 0 {
		words = Words
	}
	var vocab strings.Builder
	vocab.WriteString(`"[PAD]":0,"[UNK]":1,"[CLS]":2,"[SEP]":3`)
	for i, w := range words {
		fmt.Fprintf(&vocab, ",%q:%d", w, i+4)
	}
	return []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id":0,"content":"[PAD]","special":true},
    {"id":1,"content":"[UNK]","special":true},
    {"id":2,"content":"[CLS]","special":true},
    {"id":3,"content":"[SEP]","special":true}
  ],
  "normalizer": {"type":"BertNormalizer","clean_text":true,"handle_chinese_chars":true,"strip_accents":null,"lowercase":true},
  "pre_tokenizer": {"type":"BertPreTokenizer"},
  "post_processor": {
    "type":"TemplateProcessing",
    "single":[{"SpecialToken":{"id":"[CLS]","type_id":0}},{"Sequence":{"id":"A","type_id":0}},{"SpecialToken":{"id":"[SEP]","type_id":0}}],
    "special_tokens":{"[CLS]":{"id":"[CLS]","ids":[2],"tokens":["[CLS]"]},"[SEP]":{"id":"[SEP]","ids":[3],"tokens":["[SEP]"]}}
  },
  "model": {"type":"WordPiece","unk_token":"[UNK]","continuing_subword_prefix":"##","max_input_chars_per_word":100,"vocab":{` + vocab.String() + `}}
}`)
}
