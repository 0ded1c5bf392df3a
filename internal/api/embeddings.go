package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
)

func (s *Server) handleEmbeddings(c *echo.Context) error {
	req, err := decodeJSON[EmbeddingRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "", "invalid request body: "+err.Error())
	}
	if err := validateEmbeddingRequest(&req); err != nil {
		return writeAPIError(c, classify(err))
	}
	normalize := req.Normalize == nil || *req.Normalize

	start := time.Now()
	res, err := s.provider.Embed(c.Request().Context(), req.Model, req.Input.Values, normalize)
	if err != nil {
		e := classify(err)
		if e.status >= http.StatusInternalServerError {
			s.log.Error("embedding request failed", "model", req.Model, "error", err)
		}
		return writeAPIError(c, e)
	}

	resp := EmbeddingResponse{
		Object: "list",
		Data:   make([]EmbeddingData, len(res.Embeddings)),
		Model:  res.Model,
		Usage: EmbeddingUsage{
			PromptTokens: res.Usage.PromptTokens,
			TotalTokens:  res.Usage.TotalTokens,
		},
	}
	for i, v := range res.Embeddings {
		d := EmbeddingData{Object: "embedding", Index: i, Embedding: v}
		if req.EncodingFormat == EncodingBase64 {
			d.Embedding = encodeBase64(v)
		}
		resp.Data[i] = d
	}
	s.log.Debug("embedded batch",
		"model", res.Model,
		"sentences", len(res.Embeddings),
		"duration", time.Since(start),
	)
	return c.JSON(http.StatusOK, resp)
}

func validateEmbeddingRequest(req *EmbeddingRequest) error {
	if req.Input == nil {
		return newInvalidRequest("input", "input is required")
	}
	if len(req.Input.Values) == 0 {
		return newInvalidRequest("input", "input must not be empty")
	}
	switch req.EncodingFormat {
	case "", EncodingFloat, EncodingBase64:
	default:
		return newInvalidRequest("encoding_format", "encoding_format must be \"float\" or \"base64\"")
	}
	return nil
}
