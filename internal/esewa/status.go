package esewa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type StatusResponse struct {
	ProductCode     string `json:"product_code"`
	TransactionUUID string `json:"transaction_uuid"`
	TotalAmount     Text   `json:"total_amount"`
	Status          string `json:"status"`
	RefID           string `json:"ref_id"`
}

// StatusClient queries the provider's transaction status API.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

func NewStatusClient(baseURL string, timeout time.Duration) *StatusClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatusClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *StatusClient) Check(ctx context.Context, productCode, totalAmount, transactionUUID string) (*StatusResponse, error) {
	q := url.Values{}
	q.Set("product_code", productCode)
	q.Set("total_amount", totalAmount)
	q.Set("transaction_uuid", transactionUUID)

	endpoint := c.baseURL
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + q.Encode()
	} else {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa status check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return nil, fmt.Errorf("esewa status http %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("esewa status http %d", resp.StatusCode)
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode esewa status: %w", err)
	}
	return &out, nil
}
