package issuetracker

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// APIError is a classified error from a remote tracker's HTTP API.
// Grounded on internal/errors/jira_errors.go's JiraError shape, widened
// to "tracker" instead of Jira-only since this package now serves both
// Linear and Jira backends.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("issue tracker API error (status %d): %s", e.StatusCode, e.Message)
}

// ClassifyAndWait implements the tracker API's retry policy: per issue,
// never aborts the batch. 429 honors Retry-After (or a default backoff);
// 5xx retries up to maxRetries with retryDelay between attempts; 4xx
// never retries.
func ClassifyAndWait(err error, maxRetries int, retryDelay time.Duration) (retry bool, finalErr error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false, err
	}

	if apiErr.StatusCode == http.StatusTooManyRequests {
		wait := apiErr.RetryAfter
		if wait <= 0 {
			wait = retryDelay
		}
		slog.Warn("issue tracker rate limited", "retry_after", wait)
		time.Sleep(wait)
		return true, nil
	}

	if apiErr.StatusCode >= 500 && apiErr.StatusCode < 600 {
		if maxRetries > 0 {
			slog.Warn("issue tracker server error, will retry", "status", apiErr.StatusCode)
			time.Sleep(retryDelay)
			return true, nil
		}
		return false, fmt.Errorf("issue tracker: max retries reached: %w", apiErr)
	}

	return false, fmt.Errorf("issue tracker client error (no retry): %w", apiErr)
}
