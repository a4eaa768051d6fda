// Package enrichment implements the post-write, best-effort embedding and
// toxicity lookups: a fire-and-forget goroutine launched
// after a text reply has been stored, never blocking the interaction
// response, with failures logged and swallowed.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HFClient is a thin net/http client against the two HF endpoints named in
// HFClient. No third-party HTTP client library appears in the retrieval
// pack for this concern, so the standard library is used directly
// (justified in DESIGN.md).
type HFClient struct {
	EmbeddingURL string
	ToxicityURL  string
	HTTPClient   *http.Client
}

type hfRequest struct {
	Text string `json:"text"`
}

type toxicityRecord struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// FetchEmbedding posts text to the feature-extraction endpoint and returns
// the resulting embedding vector.
func (c *HFClient) FetchEmbedding(ctx context.Context, text string) ([]float64, error) {
	var vector []float64
	if err := c.post(ctx, c.EmbeddingURL, text, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// FetchToxicity posts text to the toxicity-classification endpoint and
// returns the first inner record of the nested response.
func (c *HFClient) FetchToxicity(ctx context.Context, text string) (label string, score float64, err error) {
	var records [][]toxicityRecord
	if err := c.post(ctx, c.ToxicityURL, text, &records); err != nil {
		return "", 0, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return "", 0, fmt.Errorf("enrichment: empty toxicity response")
	}
	first := records[0][0]
	return first.Label, first.Score, nil
}

func (c *HFClient) post(ctx context.Context, url string, text string, out interface{}) error {
	if url == "" {
		return fmt.Errorf("enrichment: no endpoint configured")
	}
	body, err := json.Marshal(hfRequest{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("enrichment: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
