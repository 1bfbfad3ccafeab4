package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fernwood/procure/internal/blob"
	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/resource"
	"github.com/fernwood/procure/internal/schema"
)

// HTTPClient implements ProcureClient using the HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	accountID  string
	httpClient *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g.
// "http://localhost:8080") on behalf of one account. When token is
// non-empty, an Authorization header is set on every request.
func NewHTTPClient(baseURL, token, accountID string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		accountID:  accountID,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Account ---

func (c *HTTPClient) ProvisionAccount(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/accounts/provision", nil, nil)
}

// --- Schema ---

func (c *HTTPClient) GetSchema(ctx context.Context, rt model.ResourceType) (*model.Schema, error) {
	var sch model.Schema
	if err := c.doJSON(ctx, http.MethodGet, "/v1/schemas/"+url.PathEscape(rt.String()), nil, &sch); err != nil {
		return nil, err
	}
	return &sch, nil
}

func (c *HTTPClient) CreateField(ctx context.Context, in schema.FieldInput) (*model.Field, error) {
	var field model.Field
	if err := c.doJSON(ctx, http.MethodPost, "/v1/fields", in, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

func (c *HTTPClient) GetField(ctx context.Context, id string) (*model.Field, error) {
	var field model.Field
	if err := c.doJSON(ctx, http.MethodGet, "/v1/fields/"+url.PathEscape(id), nil, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

func (c *HTTPClient) UpdateField(ctx context.Context, id string, up schema.FieldUpdate) (*model.Field, error) {
	var field model.Field
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/fields/"+url.PathEscape(id), up, &field); err != nil {
		return nil, err
	}
	return &field, nil
}

func (c *HTTPClient) DeleteField(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/fields/"+url.PathEscape(id), nil, nil)
}

// --- Resources ---

func (c *HTTPClient) CreateResource(ctx context.Context, rt model.ResourceType, fields []model.FieldInput) (*model.Resource, error) {
	body := map[string]any{"type": rt, "fields": fields}
	var res model.Resource
	if err := c.doJSON(ctx, http.MethodPost, "/v1/resources", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	var res model.Resource
	if err := c.doJSON(ctx, http.MethodGet, "/v1/resources/"+url.PathEscape(id), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) GetResourceByKey(ctx context.Context, rt model.ResourceType, key int64) (*model.Resource, error) {
	path := "/v1/resources/by-key/" + url.PathEscape(rt.String()) + "/" + strconv.FormatInt(key, 10)
	var res model.Resource
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) SearchResources(ctx context.Context, rt model.ResourceType, where, orderBy json.RawMessage) ([]*model.Resource, error) {
	body := map[string]any{"type": rt}
	if len(where) > 0 {
		body["where"] = where
	}
	if len(orderBy) > 0 {
		body["order_by"] = orderBy
	}
	var out struct {
		Resources []*model.Resource `json:"resources"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/resources/search", body, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

func (c *HTTPClient) UpdateResource(ctx context.Context, id string, fields []model.FieldInput) (*model.Resource, error) {
	body := map[string]any{"fields": fields}
	var res model.Resource
	if err := c.doJSON(ctx, http.MethodPatch, "/v1/resources/"+url.PathEscape(id), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) DeleteResource(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/resources/"+url.PathEscape(id), nil, nil)
}

// --- Costs ---

func (c *HTTPClient) AddCost(ctx context.Context, resourceID string, in resource.CostInput) (*model.Cost, error) {
	var cost model.Cost
	if err := c.doJSON(ctx, http.MethodPost, "/v1/resources/"+url.PathEscape(resourceID)+"/costs", in, &cost); err != nil {
		return nil, err
	}
	return &cost, nil
}

func (c *HTTPClient) DeleteCost(ctx context.Context, resourceID, costID string) error {
	path := "/v1/resources/" + url.PathEscape(resourceID) + "/costs/" + url.PathEscape(costID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// --- Contacts ---

func (c *HTTPClient) CreateContact(ctx context.Context, name, email string) (string, error) {
	body := map[string]string{"name": name, "email": email}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/contacts", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// --- Blobs ---

func (c *HTTPClient) UploadBlob(ctx context.Context, name, contentType string, data []byte) (*blob.Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/blobs", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Blob-Name", name)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiErrorFrom(resp.StatusCode, respBody)
	}

	var info blob.Info
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &info, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func apiErrorFrom(status int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}

func (c *HTTPClient) setCommonHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.accountID != "" {
		req.Header.Set("X-Account-ID", c.accountID)
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content is success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiErrorFrom(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
