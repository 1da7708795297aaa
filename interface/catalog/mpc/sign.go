package mpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/lulc-exporter/service"
	"github.com/airbusgeo/lulc-exporter/service/log"
)

// SASTokenURL is the Planetary Computer endpoint delivering SAS tokens per collection
const SASTokenURL = "https://planetarycomputer.microsoft.com/api/sas/v1/token"

// tokenSafetyMargin: a token about to expire is renewed rather than reused
const tokenSafetyMargin = time.Minute

type sasToken struct {
	Token  string    `json:"token"`
	Expiry time.Time `json:"msft:expiry"`
}

// Signer appends a Shared Access Signature to asset hrefs so that blob data can be fetched.
// Tokens are cached per collection until expiry.
type Signer struct {
	URL             string
	SubscriptionKey string

	mu     sync.Mutex
	tokens map[string]sasToken
}

// SignHref returns the href with the SAS token of the collection appended
func (s *Signer) SignHref(ctx context.Context, collection, href string) (string, error) {
	token, err := s.token(ctx, collection)
	if err != nil {
		return "", fmt.Errorf("SignHref.%w", err)
	}
	if token == "" {
		return href, nil
	}
	sep := "?"
	if strings.Contains(href, "?") {
		sep = "&"
	}
	return href + sep + token, nil
}

func (s *Signer) token(ctx context.Context, collection string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[collection]; ok && time.Now().Add(tokenSafetyMargin).Before(t.Expiry) {
		return t.Token, nil
	}

	if s.URL == "" {
		s.URL = SASTokenURL
	}
	auth := map[string]string{"Ocp-Apim-Subscription-Key": s.SubscriptionKey}
	body, err := service.HTTPGetWithAuth(ctx, s.URL+"/"+collection, auth, 4)
	if err != nil {
		return "", fmt.Errorf("token.HTTPGetWithAuth: %w", err)
	}

	t := sasToken{}
	if err := json.Unmarshal(body, &t); err != nil {
		return "", fmt.Errorf("token.Unmarshal: %w", err)
	}
	if s.tokens == nil {
		s.tokens = map[string]sasToken{}
	}
	s.tokens[collection] = t
	log.Logger(ctx).Sugar().Debugf("new SAS token for %s, expires %s", collection, t.Expiry.Format(time.RFC3339))
	return t.Token, nil
}
