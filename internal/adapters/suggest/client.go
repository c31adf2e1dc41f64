// Package suggest talks to the interview service that generates copilot
// suggestions and stores transcript chunks.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/copilot/internal/domain"
)

var ErrNotConfigured = errors.New("interview service url not configured")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type suggestRequest struct {
	TranscriptText string `json:"transcriptText"`
}

type suggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

type persistRequest struct {
	TranscriptChunks []string `json:"transcriptChunks"`
	Suggestions      []string `json:"suggestions"`
}

// Suggest asks for suggestions on a transcript window.
func (c *Client) Suggest(ctx context.Context, id domain.InterviewID, transcript string) ([]string, error) {
	var out suggestResponse
	if err := c.post(ctx, id, "copilot/suggest", suggestRequest{TranscriptText: transcript}, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// Persist stores transcript chunks on the interview record.
func (c *Client) Persist(ctx context.Context, id domain.InterviewID, chunks []string) error {
	return c.post(ctx, id, "copilot", persistRequest{TranscriptChunks: chunks, Suggestions: []string{}}, nil)
}

func (c *Client) post(ctx context.Context, id domain.InterviewID, path string, in, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/sessions/%s/%s", c.baseURL, url.PathEscape(string(id)), path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}
