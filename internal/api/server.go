// Package api serves an OpenAI-compatible embeddings API over echo.
package api

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/samcharles93/glow/internal/logger"
	"github.com/samcharles93/glow/internal/registry"
)

// Provider embeds sentences with a named model. *registry.Registry
// implements it.
type Provider interface {
	Embed(ctx context.Context, model string, sentences []string, normalize bool) (*registry.Result, error)
	ListModels() ([]string, error)
	Loaded() []string
}

type Server struct {
	provider Provider
	limiter  *rate.Limiter
	log      logger.Logger
	clock    func() time.Time
	started  time.Time
}

type Option func(*Server)

// WithRateLimit admits perSecond requests on average with bursts up to
// burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(provider Provider, opts ...Option) *Server {
	s := &Server{
		provider: provider,
		log:      logger.Discard(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.clock()
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/v1/models/:id", s.handleGetModel)
	e.POST("/v1/embeddings", s.handleEmbeddings, s.rateLimit)
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			c.Response().Header().Set("Retry-After", strconv.Itoa(1))
			return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded", "", "rate_limit_exceeded")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	loaded := s.provider.Loaded()
	if loaded == nil {
		loaded = []string{}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Loaded: loaded})
}

func (s *Server) handleListModels(c *echo.Context) error {
	models, err := s.models()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: models})
}

func (s *Server) handleGetModel(c *echo.Context) error {
	id := c.Param("id")
	models, err := s.models()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	for _, m := range models {
		if m.ID == id {
			return c.JSON(http.StatusOK, m)
		}
	}
	return writeNotFound(c, "model "+strconv.Quote(id)+" not found")
}

func (s *Server) models() ([]ModelObject, error) {
	ids, err := s.provider.ListModels()
	if err != nil {
		return nil, err
	}
	loaded := s.provider.Loaded()
	out := make([]ModelObject, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelObject{
			ID:      id,
			Object:  "model",
			Created: s.started.Unix(),
			OwnedBy: "glow",
			Loaded:  slices.Contains(loaded, id),
		})
	}
	return out, nil
}
