// Package scanner is the handheld side of event check-in: a local
// guest cache and scan log that keep the door working while the network
// is down, and the loop that turns decoded QR payloads into check-ins.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"checkin-backend/apperror"
	"checkin-backend/models"
)

// API is the coordinator as seen from a scanner. Every method returns
// *apperror.Error values; network failures are KindTransient.
type API interface {
	SubmitScan(ctx context.Context, token string, req models.ScanRequest) (*models.CheckinResult, error)
	Search(ctx context.Context, token, query string, limit int) ([]models.SearchCandidate, error)
	Guests(ctx context.Context, token string) ([]models.Guest, error)
	Session(ctx context.Context, token string) (*models.ScannerSession, error)
	Stats(ctx context.Context, token string) (models.EventStats, error)
	Health(ctx context.Context) error
}

type apiResponse struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// HTTPClient talks to the coordinator's /api/scanner routes.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds a client whose requests give up after timeout.
// A timed-out request is reported as transient, which sends the scan to
// the offline queue.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) SubmitScan(ctx context.Context, token string, req models.ScanRequest) (*models.CheckinResult, error) {
	var result models.CheckinResult
	err := c.do(ctx, http.MethodPost, "/api/scanner/checkin", token, req, &result)
	if err != nil {
		// a conflict still carries the original check-in
		if apperror.Is(err, apperror.KindConflict) && result.GuestID != "" {
			return &result, err
		}
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Search(ctx context.Context, token, query string, limit int) ([]models.SearchCandidate, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var candidates []models.SearchCandidate
	if err := c.do(ctx, http.MethodGet, "/api/scanner/search?"+q.Encode(), token, nil, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (c *HTTPClient) Guests(ctx context.Context, token string) ([]models.Guest, error) {
	var guests []models.Guest
	if err := c.do(ctx, http.MethodGet, "/api/scanner/guests", token, nil, &guests); err != nil {
		return nil, err
	}
	return guests, nil
}

func (c *HTTPClient) Session(ctx context.Context, token string) (*models.ScannerSession, error) {
	var session models.ScannerSession
	if err := c.do(ctx, http.MethodGet, "/api/scanner/session", token, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) Stats(ctx context.Context, token string) (models.EventStats, error) {
	var stats models.EventStats
	err := c.do(ctx, http.MethodGet, "/api/scanner/stats", token, nil, &stats)
	return stats, err
}

func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return apperror.Internal("build health request", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperror.Transient("coordinator unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return apperror.FromStatus(resp.StatusCode, "health_failed", "coordinator is not healthy")
	}
	return nil
}

// do performs one request and decodes the envelope's data into out. On
// an error status the data, if any, is still decoded into out.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperror.Internal("encode request", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return apperror.Internal("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperror.Transient("coordinator unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Transient("read response", err)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		if resp.StatusCode >= 300 {
			return apperror.FromStatus(resp.StatusCode, "http_"+strconv.Itoa(resp.StatusCode), strings.TrimSpace(string(raw)))
		}
		return apperror.Internal("decode response", fmt.Errorf("%s %s: %w", method, path, err))
	}

	if len(ar.Data) > 0 && out != nil && string(ar.Data) != "null" {
		if err := json.Unmarshal(ar.Data, out); err != nil {
			return apperror.Internal("decode response data", err)
		}
	}

	if resp.StatusCode >= 300 || ar.Status == "error" {
		return apperror.FromStatus(resp.StatusCode, ar.Code, ar.Message)
	}
	return nil
}
