// Package registry lazily loads embedding models and keeps one running
// SentenceTransformer per model id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/samcharles93/glow/internal/device"
	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/embedder"
	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/model"
	"github.com/samcharles93/glow/internal/repo"
)

const EnvModelsDir = "GLOW_MODELS_DIR"

var (
	// ErrModelRequired is returned when no model id is given and none can
	// be inferred.
	ErrModelRequired = errors.New("model is required")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("registry closed")
)

// OpenFunc loads a repository into a running SentenceTransformer.
type OpenFunc func(ctx context.Context, r repo.Repository, kind model.Kind, dev device.Device) (*embedder.SentenceTransformer, error)

type Config struct {
	// DefaultModel serves requests that name no model, or a model this
	// registry does not know. It may be a hub id, a directory, or a name
	// under ModelsPath.
	DefaultModel string
	Revision     string
	// Kind forces an architecture; zero detects it from config.json.
	Kind       model.Kind
	ModelsPath string
	// AllowAnyModel lets callers name arbitrary directories and hub ids.
	// Otherwise only the default, names under ModelsPath and loaded models
	// are served.
	AllowAnyModel bool
	// Device is the device models are opened on. The zero value uses
	// device.Default.
	Device device.Device
	Logger     logger.Logger
	HubOptions []repo.HubOption
	Open       OpenFunc
}

// Result is one embedding call.
type Result struct {
	Model      string
	Embeddings [][]float32
	Usage      embed.Usage
}

type Registry struct {
	cfg   Config
	log   logger.Logger
	group singleflight.Group

	mu     sync.Mutex
	cache  map[string]*embedder.SentenceTransformer
	closed bool
}

func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Open == nil {
		log := cfg.Logger
		cfg.Open = func(ctx context.Context, r repo.Repository, kind model.Kind, dev device.Device) (*embedder.SentenceTransformer, error) {
			return embedder.New(ctx, r, kind, dev, embedder.WithLogger(log))
		}
	}
	return &Registry{
		cfg:   cfg,
		log:   cfg.Logger,
		cache: make(map[string]*embedder.SentenceTransformer),
	}
}

// Embed encodes sentences with the model named modelID.
func (r *Registry) Embed(ctx context.Context, modelID string, sentences []string, normalize bool) (*Result, error) {
	id, st, err := r.Get(ctx, modelID)
	if err != nil {
		return nil, err
	}
	out, usage, err := st.EncodeBatch(ctx, sentences, normalize)
	if err != nil {
		if !st.Alive() {
			r.log.Error("model worker stopped", "model", id, "error", st.Err())
		}
		return nil, err
	}
	return &Result{Model: id, Embeddings: out, Usage: usage}, nil
}

// Get returns the running model for modelID, loading it on first use. A
// model whose worker has died is dropped and loaded again.
func (r *Registry) Get(ctx context.Context, modelID string) (string, *embedder.SentenceTransformer, error) {
	id, err := r.resolveID(modelID)
	if err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", nil, ErrClosed
	}
	st, ok := r.cache[id]
	if ok && !st.Alive() {
		r.log.Error("evicting model with dead worker", "model", id, "error", st.Err())
		delete(r.cache, id)
		ok = false
	}
	r.mu.Unlock()
	if ok {
		return id, st, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.Lock()
		if st, ok := r.cache[id]; ok && st.Alive() {
			r.mu.Unlock()
			return st, nil
		}
		r.mu.Unlock()

		rp, err := r.repository(id)
		if err != nil {
			return nil, err
		}
		dev := r.cfg.Device
		if dev == (device.Device{}) {
			if dev, err = device.Default(); err != nil {
				return nil, err
			}
		}
		// Loads outlive the request that triggered them.
		st, err := r.cfg.Open(context.WithoutCancel(ctx), rp, r.cfg.Kind, dev)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			st.Shutdown()
			return nil, ErrClosed
		}
		r.cache[id] = st
		return st, nil
	})
	if err != nil {
		return "", nil, err
	}
	return id, v.(*embedder.SentenceTransformer), nil
}

// Loaded returns the ids of models currently running.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.cache))
	for id, st := range r.cache {
		if st.Alive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ListModels returns the default model, every model under ModelsPath and
// every loaded model.
func (r *Registry) ListModels() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	add(strings.TrimSpace(r.cfg.DefaultModel))
	if dir := r.modelsDir(); dir != "" {
		found, err := repo.Discover(dir)
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			add(id)
		}
	}
	for _, id := range r.Loaded() {
		add(id)
	}
	return out, nil
}

// Close shuts every model down and waits for the workers to exit.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := r.cache
	r.cache = make(map[string]*embedder.SentenceTransformer)
	r.mu.Unlock()

	for _, st := range all {
		st.Shutdown()
	}
	for id, st := range all {
		<-st.Done()
		r.log.Debug("model stopped", "model", id)
	}
}

func (r *Registry) resolveID(modelID string) (string, error) {
	id := strings.TrimSpace(modelID)
	def := strings.TrimSpace(r.cfg.DefaultModel)
	if id == "" || id == def {
		return r.defaultID()
	}
	if r.cfg.AllowAnyModel || r.known(id) {
		return id, nil
	}
	if def != "" {
		r.log.Debug("unknown model requested, using default", "requested", id, "model", def)
		return def, nil
	}
	return "", fmt.Errorf("%w: model %q", repo.ErrNotFound, id)
}

func (r *Registry) defaultID() (string, error) {
	if id := strings.TrimSpace(r.cfg.DefaultModel); id != "" {
		return id, nil
	}
	dir := r.modelsDir()
	if dir == "" {
		return "", ErrModelRequired
	}
	found, err := repo.Discover(dir)
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no models found in %s", ErrModelRequired, dir)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w: multiple models found in %s", ErrModelRequired, dir)
	}
}

// known reports whether id is loaded or names a model under ModelsPath.
func (r *Registry) known(id string) bool {
	r.mu.Lock()
	_, ok := r.cache[id]
	r.mu.Unlock()
	if ok {
		return true
	}
	_, ok = r.localModel(id)
	return ok
}

func (r *Registry) localModel(id string) (string, bool) {
	dir := r.modelsDir()
	if dir == "" || !filepath.IsLocal(id) {
		return "", false
	}
	cand := filepath.Join(dir, id)
	return cand, isDir(cand)
}

// repository maps an id to a model under ModelsPath, then to a local
// directory, and to the hub otherwise.
func (r *Registry) repository(id string) (repo.Repository, error) {
	if cand, ok := r.localModel(id); ok {
		return repo.NewDir(cand), nil
	}
	if isDir(id) {
		return repo.NewDir(id), nil
	}
	if strings.Count(id, "/") == 1 && !strings.HasPrefix(id, "/") && !strings.HasPrefix(id, ".") {
		return repo.NewHub(id, r.cfg.Revision, append([]repo.HubOption{repo.WithLogger(r.log)}, r.cfg.HubOptions...)...), nil
	}
	return nil, fmt.Errorf("%w: model %q", repo.ErrNotFound, id)
}

func (r *Registry) modelsDir() string {
	if d := strings.TrimSpace(r.cfg.ModelsPath); d != "" {
		return d
	}
	return strings.TrimSpace(os.Getenv(EnvModelsDir))
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
