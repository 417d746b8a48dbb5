package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Revoker notifies a remote endpoint that a refresh token should no longer
// be honored. Logout treats it as best-effort: local state is already
// cleared before the notification goes out.
type Revoker struct {
	url    string
	client *http.Client
}

func NewRevoker(url string) *Revoker {
	return &Revoker{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *Revoker) Revoke(ctx context.Context, refreshToken string) error {
	if r == nil || r.url == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return fmt.Errorf("encode revocation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify revocation endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("revocation endpoint returned %d", resp.StatusCode)
	}
	return nil
}
