package embedder

import (
	"io"

	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/model"
)

// Request is one batch to embed.
type Request struct {
	Sentences []string
	Normalize bool
}

// Response holds one embedding per request sentence, in order.
type Response struct {
	Embeddings [][]float32
	Usage      embed.Usage
}

// Handler runs batches against a model and tokenizer it owns exclusively.
// It is meant to be driven by a single queue worker.
type Handler struct {
	model     model.Model
	tokenizer embed.Tokenizer
	closer    io.Closer
}

// NewHandler takes ownership of m and tok. closer, if not nil, is closed
// together with the handler and typically releases mapped weights.
func NewHandler(m model.Model, tok embed.Tokenizer, closer io.Closer) *Handler {
	return &Handler{model: m, tokenizer: tok, closer: closer}
}

func (h *Handler) Handle(req Request) (Response, error) {
	out, usage, err := embed.Encode(h.model, h.tokenizer, req.Sentences, req.Normalize)
	if err != nil {
		return Response{}, err
	}
	return Response{Embeddings: out, Usage: usage}, nil
}

func (h *Handler) Close() error {
	if h.closer == nil {
		return nil
	}
	err := h.closer.Close()
	h.closer = nil
	return err
}
