package aiops

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/hazyhaar/docforge/aiclient"
	"github.com/hazyhaar/docforge/transform"
)

// classify maps a client failure onto a result kind. Unknown failures are
// treated as remote: the request left the process and came back wrong.
func classify(err error) *transform.Error {
	if err == nil {
		return nil
	}
	var te *transform.Error
	if errors.As(err, &te) {
		return te
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return transform.NewError(transform.KindTimeout, "the AI request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return transform.NewError(transform.KindTimeout, "the AI request timed out", err)
	case errors.Is(err, context.Canceled):
		return transform.NewError(transform.KindTimeout, "the AI request was cancelled", err)
	case errors.Is(err, aiclient.ErrMissingAPIKey):
		return transform.NewError(transform.KindRemote, "AI service not available. Please check API configuration.", err)
	case errors.Is(err, aiclient.ErrUnauthorized):
		return transform.NewError(transform.KindRemote, "the AI service rejected the API key", err)
	case errors.Is(err, aiclient.ErrRateLimited):
		return transform.NewError(transform.KindRemote, "the AI service is rate limiting requests", err)
	case errors.Is(err, aiclient.ErrUnavailable):
		return transform.NewError(transform.KindRemote, "the AI service is unavailable", err)
	case errors.Is(err, aiclient.ErrEmptyResponse):
		return transform.NewError(transform.KindRemote, "the AI service returned no content", err)
	}

	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return transform.NewError(transform.KindNetwork, "the AI service could not be reached", err)
	}
	return transform.NewError(transform.KindRemote, "the AI request failed", err)
}
