package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// SetupHFEmbeddingMock creates a mock Hugging Face feature-extraction
// endpoint, matching enrichment.HFClient.FetchEmbedding's expected shape: a
// bare JSON array of floats.
func SetupHFEmbeddingMock(t *testing.T, vector []float64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(vector)
	}))
}

// SetupHFToxicityMock creates a mock Hugging Face toxicity-classification
// endpoint, matching enrichment.HFClient.FetchToxicity's expected shape: a
// nested array of {label, score} records.
func SetupHFToxicityMock(t *testing.T, label string, score float64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([][]map[string]interface{}{
			{{"label": label, "score": score}},
		})
	}))
}

// SetupHFErrorMock creates a mock Hugging Face endpoint that always fails,
// for exercising the enrichment hook's best-effort failure handling.
func SetupHFErrorMock(t *testing.T, statusCode int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statusCode)
	}))
}

// SetupCustomMock creates a custom mock server with a provided handler
func SetupCustomMock(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	return httptest.NewServer(handler)
}
