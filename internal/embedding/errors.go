package embedding

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/sashabaranov/go-openai"
)

// providerError wraps err as ProviderUnavailable unless it is already categorized.
func providerError(op string, err error) error {
	if failure.KindOf(err) != "" {
		return err
	}
	return failure.New(failure.ProviderUnavailable, op, err)
}

// classifyOpenAIError maps go-openai errors to the failure taxonomy. Bad requests
// (400, 413, 422) are attributed to the input; auth, rate-limit, timeout, server,
// and transport errors make the provider unavailable for this note.
func classifyOpenAIError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return failure.New(failure.InvalidInput, op, err)
	}
	return failure.New(failure.ProviderUnavailable, op, err)
}
