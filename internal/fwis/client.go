// Package fwis loads the current flood warnings from the flood warning
// information service.
package fwis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout applies when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// Attributes are the target area fields of a warning.
type Attributes struct {
	TaID                int64  `json:"taId"`
	TaCode              string `json:"taCode"`
	TaName              string `json:"taName"`
	TaDescription       string `json:"taDescription"`
	QuickDial           string `json:"quickDial"`
	Version             int64  `json:"version"`
	TaCategory          string `json:"taCategory"`
	OwnerArea           string `json:"ownerArea"`
	CreatedOn           string `json:"createdOn"`
	LastModifiedDate    string `json:"lastModifiedDate"`
	SituationChanged    string `json:"situationChanged"`
	SeverityChanged     string `json:"severityChanged"`
	TimeMessageReceived string `json:"timeMessageReceived"`
	SeverityValue       int64  `json:"severityValue"`
	Severity            string `json:"severity"`
}

// Warning is one current flood alert or warning.
type Warning struct {
	Situation string     `json:"situation"`
	Attr      Attributes `json:"attr"`
}

type response struct {
	Warnings []Warning `json:"warnings"`
}

// Client fetches the warnings document.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewClient returns a Client for url. apiKey is sent as x-api-key.
func NewClient(url, apiKey string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{url: url, apiKey: apiKey, http: hc}
}

// Warnings returns every current warning.
func (c *Client) Warnings(ctx context.Context) ([]Warning, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FWIS request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("FWIS request failed (HTTP Status: %d)", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode FWIS response: %w", err)
	}
	if out.Warnings == nil {
		return nil, fmt.Errorf("FWIS response has no warnings list")
	}
	return out.Warnings, nil
}
