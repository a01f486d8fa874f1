// Package bootstrap discovers the websocket host by GETting a bootstrap URL
// and taking the first candidate's address (spec §4.3 step 2). This is the
// one external collaborator the spec treats as out of scope but that a
// runnable module still needs a default for (spec §14); it is deliberately
// a thin net/http client, not a library-backed REST client, since the
// teacher has no analogous outbound HTTP caller to generalize from — see
// DESIGN.md for the stdlib justification.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Host is one entry of the bootstrap response.
type Host struct {
	Address string `json:"address"`
}

// Discover GETs url, parses a JSON array of hosts, and returns the first
// entry's address as the websocket URI to dial.
func Discover(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bootstrap: building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bootstrap: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bootstrap: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("bootstrap: reading response: %w", err)
	}

	var hosts []Host
	if err := json.Unmarshal(body, &hosts); err != nil {
		return "", fmt.Errorf("bootstrap: parsing response: %w", err)
	}
	if len(hosts) == 0 {
		return "", fmt.Errorf("bootstrap: host list is empty")
	}
	if hosts[0].Address == "" {
		return "", fmt.Errorf("bootstrap: first host has no address")
	}

	return hosts[0].Address, nil
}
