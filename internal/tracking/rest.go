package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OrderSnapshot is one order in the authoritative REST list. Snapshots
// carry the fields the push stream does not (items, notes, payment method).
type OrderSnapshot struct {
	OrderID           string          `json:"orderId"`
	Status            string          `json:"status"`
	TrackingInfo      string          `json:"tracking_info"`
	RestaurantAddress map[string]any  `json:"restaurantAddress,omitempty"`
	CustomerAddress   map[string]any  `json:"customerAddress,omitempty"`
	DriverID          string          `json:"driverId,omitempty"`
	TotalAmount       float64         `json:"total_amount"`
	OrderItems        json.RawMessage `json:"order_items,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	UpdatedAt         int64           `json:"updated_at"`
}

// Client is a typed client for the FlashFood REST collaborators consumed by
// the synchronizer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchOrders returns the customer's authoritative order list, used for
// staleness cleanup and field backfill.
func (c *Client) FetchOrders(ctx context.Context, customerID string) ([]OrderSnapshot, error) {
	var out struct {
		Data []OrderSnapshot `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/customers/orders/%s", customerID), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// FetchOrderStatus validates a single order before a push for an unknown id
// is admitted. found=false means the server no longer knows the order.
func (c *Client) FetchOrderStatus(ctx context.Context, orderID string) (status string, found bool, err error) {
	var out struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	err = c.get(ctx, fmt.Sprintf("/orders/%s/status", orderID), &out)
	if err != nil {
		if errNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return out.Data.Status, true, nil
}

type httpStatusError struct {
	code int
	path string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("tracking: GET %s: status %d", e.path, e.code)
}

func errNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.code == http.StatusNotFound
}

func (c *Client) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tracking: build request %s: %w", path, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tracking: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{code: resp.StatusCode, path: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("tracking: decode %s: %w", path, err)
	}
	return nil
}
