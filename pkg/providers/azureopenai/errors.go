package azureopenai

import (
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/ragmw/midtier/pkg/errs"
)

// statusKind maps an HTTP status code to an error taxonomy kind per the
// provider's status contract: 400 is a validation failure, 401 and 403 are
// auth failures, 429 is rate limiting, 5xx and anything else non-2xx is treated
// as an upstream external API failure.
func statusKind(status int) errs.Kind {
	switch status {
	case 400:
		return errs.Validation
	case 401, 403:
		return errs.Authentication
	case 429:
		return errs.RateLimit
	default:
		return errs.ExternalAPI
	}
}

// classifyErr reclassifies an error returned by the go-openai client under
// the taxonomy, using the HTTP status code when the client surfaced one.
func classifyErr(op string, err error) *errs.Error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errs.Wrap(statusKind(apiErr.HTTPStatusCode), op+": "+apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errs.Wrap(statusKind(reqErr.HTTPStatusCode), op+" request failed", err)
	}

	return errs.Wrap(errs.Network, op+" request failed", err)
}
