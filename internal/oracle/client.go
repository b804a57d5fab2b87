// Package oracle provides the transport to the external pricing engine. The
// pricing curve itself lives in the remote service; this package only carries
// inventory and trade vectors over HTTP and validates the response.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/openpredict/marketd/internal/domain"
)

// Client is the REST client for the pricing oracle.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a pricing-oracle client.
//
// baseURL is the oracle's root, e.g. "http://localhost:9090".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// costRequest is the wire format of a pricing query. Amounts are decimal
// strings so arbitrarily large positions survive the round-trip.
type costRequest struct {
	NetOutcomeSold []string `json:"net_outcome_sold"`
	OutcomeAmounts []string `json:"outcome_amounts"`
}

type costResponse struct {
	Cost string `json:"cost"`
}

// Cost asks the oracle to price the trade vector against the current net
// exposure and returns the signed settlement cost.
func (c *Client) Cost(ctx context.Context, netOutcomeSold, trade []*big.Int) (*big.Int, error) {
	req := costRequest{
		NetOutcomeSold: encodeAmounts(netOutcomeSold),
		OutcomeAmounts: encodeAmounts(trade),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("oracle: marshal cost request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cost", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oracle: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("oracle: cost request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("oracle: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out costResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("oracle: decode cost response: %w", err)
	}

	cost, ok := new(big.Int).SetString(out.Cost, 10)
	if !ok {
		return nil, fmt.Errorf("oracle: bad cost %q in response", out.Cost)
	}
	return cost, nil
}

func encodeAmounts(amounts []*big.Int) []string {
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = a.String()
	}
	return out
}

// Compile-time interface check.
var _ domain.PricingOracle = (*Client)(nil)
