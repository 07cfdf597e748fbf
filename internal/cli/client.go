package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"oracle-protocol/internal/runtime"
)

// serverClient submits transactions to a registry server.
type serverClient struct {
	baseURL string
	http    *http.Client
}

func newServerClient(baseURL string) *serverClient {
	return &serverClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// errorBody mirrors the server's error reply.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Submit posts tx and returns its receipt. A receipt with a failure code is
// returned together with an error naming that code.
func (c *serverClient) Submit(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var receipt runtime.Receipt
	if err := json.Unmarshal(data, &receipt); err == nil && receipt.Result != "" {
		if resp.StatusCode != http.StatusOK {
			return &receipt, fmt.Errorf("transaction rejected: %s: %s", receipt.Result, receipt.Error)
		}
		return &receipt, nil
	}

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return nil, fmt.Errorf("server returned %d: %s: %s", resp.StatusCode, eb.Error, eb.Description)
	}
	return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
