package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(url string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	return GetBodyRetryReq(req, nbRetries)
}

// GetBodyRetryReq: execute the request with N retries in case of temporary errors
func GetBodyRetryReq(req *http.Request, nbRetries int) ([]byte, error) {
	var e *neturl.Error
	var body []byte
	var err error
	var resp *http.Response

	client := &http.Client{}
	for i := range nbRetries + 1 {
		time.Sleep(((1 << i) - 1) * time.Second) // Exponential backoff, starting at 0
		if i > 0 && req.GetBody != nil {
			// The previous attempt consumed the body
			if req.Body, err = req.GetBody(); err != nil {
				return nil, fmt.Errorf("GetBody: %w", err)
			}
		}
		resp, err = client.Do(req)
		if err != nil {
			if !errors.As(err, &e) || !e.Temporary() {
				return nil, err
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			body, _ = io.ReadAll(resp.Body)
			err = fmt.Errorf("%s: %v", resp.Status, body)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, err
			}
			continue
		}
		if body, err = io.ReadAll(resp.Body); err == nil {
			return body, nil
		}
	}
	return nil, err
}
