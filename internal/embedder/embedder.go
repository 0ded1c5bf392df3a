// Package embedder exposes a loaded model as a shareable sentence encoder.
package embedder

import (
	"context"
	"fmt"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/loader"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/queue"
	"github.com/samcharles93/glow/internal/repo"
)

// Info describes the model behind a SentenceTransformer.
type Info struct {
	Name       string
	Revision   string
	Kind       model.Kind
	HiddenSize int
}

// SentenceTransformer encodes sentences through a queue whose worker owns
// the model. It is safe for concurrent use.
type SentenceTransformer struct {
	info  Info
	queue *queue.Queue[Request, Response]
}

type Option func(*options)

type options struct {
	log logger.Logger
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New loads the model in r and starts its worker.
func New(ctx context.Context, r repo.Repository, kind model.Kind, dev device.Device, opts ...Option) (*SentenceTransformer, error) {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	res, err := loader.Loader{Logger: o.log}.Load(ctx, r, kind, dev)
	if err != nil {
		return nil, err
	}
	info := Info{
		Name:       res.Repo,
		Revision:   res.Revision,
		Kind:       res.Kind,
		HiddenSize: res.Model.HiddenSize(),
	}
	return Start(NewHandler(res.Model, res.Tokenizer, res), info, opts...), nil
}

// Start runs h on a new queue.
func Start(h *Handler, info Info, opts ...Option) *SentenceTransformer {
	o := options{log: logger.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	q := queue.New[Request, Response](h,
		queue.WithName(fmt.Sprintf("%s@%s", info.Name, info.Revision)),
		queue.WithLogger(o.log),
	)
	return &SentenceTransformer{info: info, queue: q}
}

// EncodeBatch embeds sentences, waiting for the worker or ctx.
func (s *SentenceTransformer) EncodeBatch(ctx context.Context, sentences []string, normalize bool) ([][]float32, embed.Usage, error) {
	resp, err := s.queue.Do(ctx, Request{Sentences: sentences, Normalize: normalize})
	if err != nil {
		return nil, embed.Usage{}, err
	}
	return resp.Embeddings, resp.Usage, nil
}

func (s *SentenceTransformer) Info() Info { return s.info }

// Shutdown stops the worker after the requests already submitted.
func (s *SentenceTransformer) Shutdown() { s.queue.Shutdown() }

// Done is closed once the worker has exited, for any reason.
func (s *SentenceTransformer) Done() <-chan struct{} { return s.queue.Done() }

// Err reports the failure that stopped the worker, if any.
func (s *SentenceTransformer) Err() error { return s.queue.Err() }

// Alive reports whether the worker still accepts requests.
func (s *SentenceTransformer) Alive() bool { return !s.queue.Closed() }

// Pending returns the number of queued requests.
func (s *SentenceTransformer) Pending() int { return s.queue.Len() }
