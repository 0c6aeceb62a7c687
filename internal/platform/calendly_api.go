package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// calendlyTimesResponse models GET /event_type_available_times.
type calendlyTimesResponse struct {
	Collection []struct {
		Status    string    `json:"status"`
		StartTime time.Time `json:"start_time"`
	} `json:"collection"`
}

// calendlyClient queries the Calendly scheduling API.
type calendlyClient struct {
	baseURL      string
	token        string
	eventTypeURI string
	client       *http.Client
}

func newCalendlyClient(baseURL, token, eventTypeURI, proxy string) (*calendlyClient, error) {
	var transport http.RoundTripper = &http.Transport{}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return &calendlyClient{
		baseURL:      baseURL,
		token:        token,
		eventTypeURI: eventTypeURI,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}, nil
}

func (c *calendlyClient) configured() bool {
	return c != nil && c.token != "" && c.eventTypeURI != ""
}

// availableTimes returns the start times offered between from and to.
func (c *calendlyClient) availableTimes(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	q := url.Values{}
	q.Set("event_type", c.eventTypeURI)
	q.Set("start_time", from.UTC().Format(time.RFC3339))
	q.Set("end_time", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event_type_available_times?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed calendlyTimesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	var times []time.Time
	for _, slot := range parsed.Collection {
		if slot.Status == "available" {
			times = append(times, slot.StartTime)
		}
	}
	return times, nil
}
