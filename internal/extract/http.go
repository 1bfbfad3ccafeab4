package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPExtractor calls an external document-extraction service over HTTP.
// The service receives the resource id, resolves the attached files through
// the API, and answers with whatever fields it could read out of them.
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPExtractor creates an extractor targeting the given base URL
// (e.g. "http://extractor:9200"). Timeout bounds each extraction call.
func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	AccountID  string `json:"account_id"`
	ResourceID string `json:"resource_id"`
}

type extractResponse struct {
	PONumber string `json:"po_number,omitempty"`
	VendorID string `json:"vendor_id,omitempty"`
}

func (e *HTTPExtractor) ExtractContent(ctx context.Context, accountID, resourceID string) (Result, error) {
	payload, err := json.Marshal(extractRequest{AccountID: accountID, ResourceID: resourceID})
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("extractor returned %d: %s", resp.StatusCode, body)
	}

	var out extractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("decoding response: %w", err)
	}
	return Result{PONumber: out.PONumber, VendorID: out.VendorID}, nil
}
