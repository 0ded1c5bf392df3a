package api

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

const (
	EncodingFloat  = "float"
	EncodingBase64 = "base64"
)

type EmbeddingRequest struct {
	Input          *Input `json:"input"`
	Model          string `json:"model,omitempty"`
	EncodingFormat string `json:"encoding_format,omitempty"`
	// Normalize defaults to true.
	Normalize *bool  `json:"normalize,omitempty"`
	User      string `json:"user,omitempty"`
}

// Input is a single string or an array of strings.
type Input struct {
	Values []string
}

func (v *Input) UnmarshalJSON(b []byte) error {
	if v == nil {
		return errors.New("input: nil receiver")
	}
	if len(b) == 0 || string(b) == "null" {
		*v = Input{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("input: %w", err)
		}
		v.Values = []string{s}
		return nil
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return errors.New("input: expected an array of strings")
		}
		v.Values = items
		return nil
	default:
		return errors.New("input: expected string or array of strings")
	}
}

func (v Input) MarshalJSON() ([]byte, error) {
	if len(v.Values) == 1 {
		return json.Marshal(v.Values[0])
	}
	return json.Marshal(v.Values)
}

type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  EmbeddingUsage  `json:"usage"`
}

// EmbeddingData carries either a []float32 or a base64 string.
type EmbeddingData struct {
	Object    string `json:"object"`
	Index     int    `json:"index"`
	Embedding any    `json:"embedding"`
}

type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type ModelList struct {
	Object string        `json:"object"`
	Data   []ModelObject `json:"data"`
}

type ModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Loaded  bool   `json:"loaded"`
}

type HealthResponse struct {
	Status string   `json:"status"`
	Loaded []string `json:"loaded"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
