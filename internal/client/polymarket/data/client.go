package polymarketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const DefaultBaseURL = "https://data-api.polymarket.com"

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
	}
}

type ActivityParams struct {
	// Type filters by activity type; TRADE when empty.
	Type  string
	Limit int
}

type PositionParams struct {
	SizeThreshold *float64
	Limit         int
}

// GetActivity returns the most recent activity entries of user.
func (c *Client) GetActivity(ctx context.Context, user string, params ActivityParams) ([]Activity, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}
	query := url.Values{}
	query.Set("user", user)
	typ := strings.ToUpper(strings.TrimSpace(params.Type))
	if typ == "" {
		typ = ActivityTypeTrade
	}
	query.Set("type", typ)
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	body, err := c.doRequest(ctx, "/activity", query)
	if err != nil {
		return nil, err
	}
	items, err := decodeEach[Activity](body)
	if err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return items, nil
}

// GetPositions returns the current holdings of user.
func (c *Client) GetPositions(ctx context.Context, user string, params PositionParams) ([]Position, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}
	query := url.Values{}
	query.Set("user", user)
	if params.SizeThreshold != nil {
		query.Set("sizeThreshold", strconv.FormatFloat(*params.SizeThreshold, 'f', -1, 64))
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	body, err := c.doRequest(ctx, "/positions", query)
	if err != nil {
		return nil, err
	}
	items, err := decodeEach[Position](body)
	if err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return items, nil
}

// decodeEach decodes a JSON array element by element. Malformed elements are
// skipped so one bad entry cannot hide the rest of the page.
func decodeEach[T any](body []byte) ([]T, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}
	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// IsTimeout reports whether err came from a deadline rather than a real
// failure. Timeouts are routine under a tight poll cadence.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusGatewayTimeout || apiErr.Status == http.StatusRequestTimeout
	}
	return false
}
