// Package annotator provides the HTTP client for the external linguistic
// annotation sidecar (tokenizer, lemmatizer, dependency parser). The engine
// never implements its own linguistics; everything comes through here.
package annotator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lehdermann/ontomed/internal/logging"
	"github.com/lehdermann/ontomed/internal/nlp"
)

// Client is an nlp.Annotator backed by an HTTP annotation service. Safe
// for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a client for the annotation service at endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type annotateRequest struct {
	Text string `json:"text"`
}

// Annotate sends text to the sidecar and decodes the full annotation.
func (c *Client) Annotate(text string) (*nlp.Annotation, error) {
	body, err := json.Marshal(annotateRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode annotate request: %w", err)
	}

	url := c.endpoint + "/annotate"
	start := time.Now()
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("annotate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("annotate request: %s returned %d: %s", url, resp.StatusCode, snippet)
	}

	var a nlp.Annotation
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode annotation: %w", err)
	}
	if a.Text == "" {
		a.Text = text
	}
	logging.Get(logging.CategoryPerception).Debugw("text annotated",
		"tokens", len(a.Tokens), "elapsed", time.Since(start))
	return &a, nil
}
