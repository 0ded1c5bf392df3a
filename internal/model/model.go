// Package model implements the BERT-family encoders used for sentence
// embeddings behind a single forward-pass interface.
package model

import (
	"fmt"
	"strings"

	"github.com/samcharles93/glow/internal/tensor"
)

// Model runs an encoder forward pass.
//
// Forward takes token ids shaped [batch, seq_len] and returns hidden states
// shaped [batch, seq_len, hidden]. Auxiliary inputs such as token type ids
// are supplied by each implementation. A Model is not safe for concurrent
// use.
type Model interface {
	Forward(ids tensor.IDs) (*tensor.Tensor3, error)
	HiddenSize() int
}

// Kind identifies a supported encoder architecture.
type Kind int

const (
	KindBert Kind = iota + 1
	KindJinaBert
)

var kindNames = map[string]Kind{
	"bert":              KindBert,
	"generic-encoder":   KindBert,
	"jinabert":          KindJinaBert,
	"jina-bert":         KindJinaBert,
	"jina_bert":         KindJinaBert,
	"alternate-encoder": KindJinaBert,
}

// Kinds lists every supported architecture.
func Kinds() []Kind { return []Kind{KindBert, KindJinaBert} }

// ParseKind resolves a case-insensitive architecture name or alias.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown model kind %q (expected bert or jinabert)", s)
}

func (k Kind) String() string {
	switch k {
	case KindBert:
		return "bert"
	case KindJinaBert:
		return "jinabert"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindBert && k != KindJinaBert {
		return nil, fmt.Errorf("invalid model kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
