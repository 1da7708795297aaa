package service

import (
	"context"
	"fmt"
	"net/http"
)

// HTTPGetWithAuth performs a GET carrying the given authentication headers,
// with retries on temporary errors. Headers with an empty value are skipped.
func HTTPGetWithAuth(ctx context.Context, url string, authHeaders map[string]string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	for header, value := range authHeaders {
		if value != "" {
			req.Header.Set(header, value)
		}
	}
	return GetBodyRetryReq(req, nbRetries)
}
