// Package client is the Go client for the scan results API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sparta-security/sparta/internal/aggregator"
	"github.com/sparta-security/sparta/internal/state"
)

// Client is the API client for the scan results service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetSummary retrieves the aggregated scan statistics
func (c *Client) GetSummary() (*aggregator.Statistics, error) {
	var response struct {
		Data *aggregator.Statistics `json:"data"`
	}
	if err := c.get("/api/v1/summary", nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetOrgState retrieves the scan state summary for an organization.
// An empty scanDate defaults to today on the server side.
func (c *Client) GetOrgState(org, scanDate string) (*state.Summary, error) {
	path := fmt.Sprintf("/api/v1/orgs/%s/state", url.PathEscape(org))
	params := url.Values{}
	if scanDate != "" {
		params.Set("date", scanDate)
	}

	var response struct {
		Data *state.Summary `json:"data"`
	}
	if err := c.get(path, params, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// GetCVE retrieves every occurrence of a CVE across stored scan reports
func (c *Client) GetCVE(cveID string) ([]aggregator.Finding, error) {
	path := fmt.Sprintf("/api/v1/cves/%s", url.PathEscape(cveID))

	var response struct {
		Data  []aggregator.Finding `json:"data"`
		Count int                  `json:"count"`
	}
	if err := c.get(path, nil, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// HealthCheck checks if the API is healthy
func (c *Client) HealthCheck() error {
	var response struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", nil, &response); err != nil {
		return err
	}
	if response.Status != "ok" {
		return fmt.Errorf("unhealthy status: %s", response.Status)
	}
	return nil
}

func (c *Client) get(path string, params url.Values, result interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}

	resp, err := c.httpClient.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
