package reliability

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedOutput marks provider responses that parsed but did not
// satisfy the question contract (empty text, options missing values).
var ErrMalformedOutput = errors.New("malformed provider output")

// HTTPStatusError carries a non-2xx status from a phrasing provider.
type HTTPStatusError struct {
	Provider string
	Status   int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s returned http status %d", e.Provider, e.Status)
}

// Classify buckets a provider failure into a stable metric code.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	default:
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			if statusErr.Status == 429 {
				return "rate_limited"
			}
			return "http_status"
		}
		return "network"
	}
}
