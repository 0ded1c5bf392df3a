package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/version"
)

const (
	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"

	envEndpoint = "HF_ENDPOINT"
	envToken    = "HF_TOKEN"
	envHome     = "HF_HOME"
)

// Hub fetches files from a Hugging Face compatible hub into a local cache.
// Cached files are reused without contacting the hub.
type Hub struct {
	repoID   string
	revision string
	endpoint string
	token    string
	cacheDir string
	client   *http.Client
	log      logger.Logger
}

type HubOption func(*Hub)

func WithEndpoint(endpoint string) HubOption {
	return func(h *Hub) { h.endpoint = strings.TrimRight(endpoint, "/") }
}

func WithToken(token string) HubOption {
	return func(h *Hub) { h.token = token }
}

func WithCacheDir(dir string) HubOption {
	return func(h *Hub) { h.cacheDir = dir }
}

func WithHTTPClient(c *http.Client) HubOption {
	return func(h *Hub) { h.client = c }
}

func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

// NewHub returns a repository for repoID ("org/name") at revision. The
// endpoint, token and cache root default to HF_ENDPOINT, HF_TOKEN and
// HF_HOME.
func NewHub(repoID, revision string, opts ...HubOption) *Hub {
	if revision == "" {
		revision = DefaultRevision
	}
	h := &Hub{
		repoID:   repoID,
		revision: revision,
		endpoint: DefaultEndpoint,
		token:    os.Getenv(envToken),
		cacheDir: defaultCacheDir(),
		client:   &http.Client{Timeout: 10 * time.Minute},
		log:      logger.Discard(),
	}
	if ep := os.Getenv(envEndpoint); ep != "" {
		h.endpoint = strings.TrimRight(ep, "/")
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func defaultCacheDir() string {
	if home := os.Getenv(envHome); home != "" {
		return filepath.Join(home, "glow")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "glow")
	}
	return filepath.Join(os.TempDir(), "glow")
}

func (h *Hub) Name() string     { return h.repoID }
func (h *Hub) Revision() string { return h.revision }

// Dir returns the cache directory holding this repository's files.
func (h *Hub) Dir() string {
	return filepath.Join(h.cacheDir, "models--"+strings.ReplaceAll(h.repoID, "/", "--"), h.revision)
}

func (h *Hub) Get(ctx context.Context, file string) (string, error) {
	if !filepath.IsLocal(file) {
		return "", fmt.Errorf("invalid artifact name %q", file)
	}
	dst := filepath.Join(h.Dir(), filepath.FromSlash(file))
	if st, err := os.Stat(dst); err == nil && !st.IsDir() {
		return dst, nil
	}

	u := h.endpoint + "/" + h.repoID + "/resolve/" + url.PathEscape(h.revision) + "/" + file
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s@%s/%s", ErrNotFound, h.repoID, h.revision, file)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("fetch %s: access denied (%s); set %s for gated repositories", u, resp.Status, envToken)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}

	n, err := writeAtomic(dst, resp.Body)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", file, err)
	}
	h.log.Info("downloaded artifact", "repo", h.repoID, "revision", h.revision, "file", file, "bytes", n, "duration", time.Since(start))
	return dst, nil
}

// writeAtomic streams r into a temporary sibling of dst and renames it into
// place, so readers never observe a partial file.
func writeAtomic(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dst)
	}
	if err != nil {
		return 0, errors.Join(err, os.Remove(tmp.Name()))
	}
	return n, nil
}
