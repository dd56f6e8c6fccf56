package igp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dquispe/sismo-sync/internal/models"
)

// FetchResult classifies the outcome of one year's fetch. A failed year is
// recoverable: the caller records Err and moves on to the next year.
type FetchResult struct {
	OK    bool
	Items []models.Record
	Err   string
}

// Client fetches seismic events from the IGP per-year endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchYear issues a single GET for the given year. No retries.
//
// A 404 means the IGP has no data for that year and counts as a successful,
// empty fetch. Any other non-200 status or transport failure is reported in
// Err with empty Items.
func (c *Client) FetchYear(ctx context.Context, year int) FetchResult {
	url := fmt.Sprintf("%s/%d", c.baseURL, year)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{Err: fmt.Sprintf("error creating request: %v", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FetchResult{Err: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		items, err := decodeRecords(resp)
		if err != nil {
			return FetchResult{Err: fmt.Sprintf("JSON parse error: %v", err)}
		}
		return FetchResult{OK: true, Items: items}
	case resp.StatusCode == http.StatusNotFound:
		// No data published for this year.
		return FetchResult{OK: true, Items: []models.Record{}}
	default:
		return FetchResult{Err: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
}

// decodeRecords parses the response body as a JSON array of objects.
// UseNumber keeps numeric fields as their exact source text so later decimal
// coercion never goes through a float.
func decodeRecords(resp *http.Response) ([]models.Record, error) {
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var items []models.Record
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Record{}
	}
	return items, nil
}
