// Package scorer notifies the visit scoring service when a stop gains a
// capture. The call is advisory; callers treat failures as log-only.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fieldcapture/internal/config"
	"fieldcapture/internal/faults"
)

// Client posts score refresh requests. A client with no URL is disabled
// and reports so, letting callers skip the call entirely.
type Client struct {
	url        string
	httpClient *http.Client
}

// New builds a client from the scorer config section.
func New(cfg config.Scorer) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a scoring endpoint is configured.
func (c *Client) Enabled() bool {
	return c.url != ""
}

// Score asks the scoring service to recompute the given visit stop.
func (c *Client) Score(ctx context.Context, visitStopID string) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"visit_stop_id": visitStopID})
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "scorer", "encode request", visitStopID, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return faults.Wrap(faults.ErrPermanent, "scorer", "build request", visitStopID, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return faults.Wrap(faults.ErrTransient, "scorer", "score", visitStopID, err)
	}
	defer func() {
		io.Copy(io.Discard, response.Body)
		response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return faults.Wrap(faults.ErrTransient, "scorer", "score", visitStopID,
			fmt.Errorf("unexpected status %d", response.StatusCode))
	}
	return nil
}
