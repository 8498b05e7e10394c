package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dskvich/perplexed/pkg/api/response"
	"github.com/dskvich/perplexed/pkg/domain"
)

type ImageService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type images struct {
	service ImageService
	writer  response.JSONResponseWriter
}

func NewImages(service ImageService) *images {
	return &images{service: service}
}

type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

func (i *images) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		i.writer.WriteErrorResponse(w, http.StatusBadRequest, "Request body is not valid JSON.")
		return
	}

	imageURL, err := i.service.Generate(r.Context(), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyPrompt):
			i.writer.WriteErrorResponse(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			i.writer.WriteErrorResponse(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, domain.ErrUsageLimited):
			i.writer.WriteErrorResponse(w, http.StatusPaymentRequired, err.Error())
		case errors.Is(err, domain.ErrNotConfigured):
			i.writer.WriteErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		default:
			i.writer.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to generate image.")
		}
		return
	}

	i.writer.WriteSuccessResponse(w, map[string]string{"imageUrl": imageURL})
}
