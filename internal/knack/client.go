// internal/knack/client.go
package knack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaseURL is the public Knack REST API endpoint.
const DefaultBaseURL = "https://api.knack.com/v1"

// Header names Knack expects on every object API call.
const (
	HeaderApplicationID = "X-Knack-Application-Id"
	HeaderAPIKey        = "X-Knack-REST-API-Key"
)

// Credentials identify one Knack application. Callers may supply them per
// request, so they are passed into each call rather than fixed on the client.
type Credentials struct {
	ApplicationID string
	APIKey        string
}

func (c Credentials) Valid() bool {
	return c.ApplicationID != "" && c.APIKey != ""
}

// Client wraps the Knack object API: filtered paginated reads, partial field
// writes, and session creation.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client against the given base URL (DefaultBaseURL when
// empty). The underlying HTTP client carries no timeout: a hung upstream call
// stalls the batch that issued it.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

// Record is one Knack record as returned by the object API. Field codes map
// to arbitrary JSON values.
type Record map[string]any

// ID returns the record's object identifier, or "" when absent.
func (r Record) ID() string {
	if v, ok := r["id"].(string); ok {
		return v
	}
	return ""
}

// RecordPage is one page of a filtered query.
type RecordPage struct {
	Records      []Record `json:"records"`
	TotalRecords int      `json:"total_records"`
}

// FilterRule is a single field match expression.
type FilterRule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Filter selects a subset of records server-side.
type Filter struct {
	Match string       `json:"match"`
	Rules []FilterRule `json:"rules"`
}

// EqualityFilter matches records whose field equals value.
func EqualityFilter(field, value string) Filter {
	return Filter{
		Match: "and",
		Rules: []FilterRule{{Field: field, Operator: "is", Value: value}},
	}
}

// APIError is a non-2xx answer from Knack. Status preserves the upstream
// status text verbatim; Body is kept for logging.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("knack: %s", e.Status)
}

// FetchRecords retrieves one page of records matching the filter.
func (c *Client) FetchRecords(ctx context.Context, creds Credentials, object string, filter Filter, page, rowsPerPage int) (*RecordPage, error) {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	q := url.Values{}
	q.Set("filters", string(filterJSON))
	q.Set("page", fmt.Sprintf("%d", page))
	q.Set("rows_per_page", fmt.Sprintf("%d", rowsPerPage))
	endpoint := fmt.Sprintf("%s/objects/%s/records?%s", c.baseURL, object, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	setObjectHeaders(req, creds)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp)
	}

	var result RecordPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode records page: %w", err)
	}
	return &result, nil
}

// FetchAllRecords iterates pages until a page returns fewer records than
// requested, tolerating arbitrarily large result sets. Fetch order is
// preserved across pages.
func (c *Client) FetchAllRecords(ctx context.Context, creds Credentials, object string, filter Filter, rowsPerPage int) ([]Record, error) {
	var all []Record
	for page := 1; ; page++ {
		result, err := c.FetchRecords(ctx, creds, object, filter, page, rowsPerPage)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Records...)
		if len(result.Records) < rowsPerPage {
			return all, nil
		}
	}
}

// FindFirstRecord returns the first record matching the filter, or nil when
// none match.
func (c *Client) FindFirstRecord(ctx context.Context, creds Credentials, object string, filter Filter) (Record, error) {
	result, err := c.FetchRecords(ctx, creds, object, filter, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return result.Records[0], nil
}

// UpdateRecord writes the given fields to a single record. Fields not named
// are left untouched.
func (c *Client) UpdateRecord(ctx context.Context, creds Credentials, object, recordID string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	endpoint := fmt.Sprintf("%s/objects/%s/records/%s", c.baseURL, object, recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build update request: %w", err)
	}
	setObjectHeaders(req, creds)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update record %s: %w", recordID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("update record %s: %w", recordID, newAPIError(resp))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LoginResponse carries the opaque session Knack issues on a successful
// application login.
type LoginResponse struct {
	Session any `json:"session"`
}

// Login authenticates against the application and returns its session. Only
// the application id is required; object API keys play no part here.
func (c *Client) Login(ctx context.Context, applicationID, email, password string) (*LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}

	endpoint := fmt.Sprintf("%s/applications/%s/session", c.baseURL, applicationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set(HeaderApplicationID, applicationID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("login: %w", newAPIError(resp))
	}

	var result LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return &result, nil
}

func setObjectHeaders(req *http.Request, creds Credentials) {
	req.Header.Set(HeaderApplicationID, creds.ApplicationID)
	req.Header.Set(HeaderAPIKey, creds.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}
