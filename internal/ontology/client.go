// Package ontology provides the HTTP client for the OntoMed ontology
// backend, which serves the medical concept catalog.
package ontology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lehdermann/ontomed/internal/logging"
	"github.com/lehdermann/ontomed/internal/nlp"
)

// Client fetches concepts from the ontology API. It implements
// nlp.ConceptSource.
type Client struct {
	endpoint string
	http     *http.Client
}

// New returns a client for the ontology API at endpoint.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type conceptsResponse struct {
	Concepts []nlp.Concept `json:"concepts"`
}

// Fetch retrieves the full concept catalog.
func (c *Client) Fetch(ctx context.Context) ([]nlp.Concept, error) {
	url := c.endpoint + "/concepts"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build concepts request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch concepts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch concepts: %s returned %d: %s", url, resp.StatusCode, snippet)
	}

	var body conceptsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode concepts: %w", err)
	}
	logging.Get(logging.CategoryOntology).Debugw("concepts fetched",
		"count", len(body.Concepts), "elapsed", time.Since(start))
	return body.Concepts, nil
}
