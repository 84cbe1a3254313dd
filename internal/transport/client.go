// Package transport implements the HTTP client for the guestbook
// backend API. It performs network calls only; all cache effects
// belong to the synchronization core.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"guestbookdash/internal/domain"
)

const defaultTimeout = 10 * time.Second

// readAttempts is the total attempt budget for idempotent reads.
// Mutations are never retried; a definitive not-found is never retried.
const readAttempts = 3

type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient returns an API client for the given base URL (for example
// "http://localhost:3001/api"). If httpClient is nil a client with the
// default 10s timeout is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// envelope is the backend's standard response wrapper. On success Data
// is set; on failure Message and StatusCode describe the error.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
}

func (c *Client) CreateEvent(ctx context.Context, name string) (*domain.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidInput
	}
	var event domain.Event
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/events", body, &event, false); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &event, nil
}

func (c *Client) GetEventDetails(ctx context.Context, eventID string) (*domain.EventDetails, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	var details domain.EventDetails
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID, nil, &details, true); err != nil {
		return nil, fmt.Errorf("get event details: %w", err)
	}
	return &details, nil
}

func (c *Client) CompleteEvent(ctx context.Context, eventID string) (*domain.CompletionSummary, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	var summary domain.CompletionSummary
	if err := c.do(ctx, http.MethodPatch, "/events/"+eventID+"/complete", nil, &summary, false); err != nil {
		return nil, fmt.Errorf("complete event: %w", err)
	}
	return &summary, nil
}

func (c *Client) ResetGuests(ctx context.Context, eventID string) error {
	if eventID == "" {
		return domain.ErrInvalidInput
	}
	if err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/reset", nil, nil, false); err != nil {
		return fmt.Errorf("reset guests: %w", err)
	}
	return nil
}

// ExportCSV fetches the guest export as raw bytes. The response is a
// plain byte stream, not the JSON envelope. Only meaningful once the
// event is completed.
func (c *Client) ExportCSV(ctx context.Context, eventID string) ([]byte, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	var blob []byte
	err := c.withReadRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events/"+eventID+"/export", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return classifyTransportErr(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiErrorFromResponse(resp)
		}
		blob, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read export body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return blob, nil
}

func (c *Client) ListGuests(ctx context.Context, eventID string) ([]domain.Guest, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	var guests []domain.Guest
	if err := c.do(ctx, http.MethodGet, "/events/"+eventID+"/guests", nil, &guests, true); err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	if guests == nil {
		guests = []domain.Guest{}
	}
	return guests, nil
}

func (c *Client) CreateGuest(ctx context.Context, eventID, name string, gender domain.Gender) (*domain.Guest, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidInput
	}
	name, err := domain.ValidateGuestInput(name, gender)
	if err != nil {
		return nil, err
	}
	var guest domain.Guest
	body := map[string]string{"name": name, "gender": string(gender)}
	if err := c.do(ctx, http.MethodPost, "/events/"+eventID+"/guests", body, &guest, false); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}
	return &guest, nil
}

func (c *Client) DeleteGuest(ctx context.Context, eventID, guestID string) error {
	if eventID == "" || guestID == "" {
		return domain.ErrInvalidInput
	}
	if err := c.do(ctx, http.MethodDelete, "/events/"+eventID+"/guests/"+guestID, nil, nil, false); err != nil {
		return fmt.Errorf("delete guest: %w", err)
	}
	return nil
}

// Health probes the backend. Unlike the other endpoints the health
// payload is not enveloped.
func (c *Client) Health(ctx context.Context) (*domain.HealthStatus, error) {
	var status domain.HealthStatus
	err := c.withReadRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return classifyTransportErr(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return apiErrorFromResponse(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("failed to decode health response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &status, nil
}

// do issues one enveloped request. out may be nil for acknowledgements.
// Reads (retry=true) get the capped retry budget.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, retry bool) error {
	call := func() error {
		var reader io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to encode request body: %w", err)
			}
			reader = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return classifyTransportErr(err)
		}
		defer resp.Body.Close()

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			if resp.StatusCode >= 400 {
				return &domain.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if !env.Success {
			code := env.StatusCode
			if code == 0 {
				code = resp.StatusCode
			}
			msg := env.Message
			if msg == "" {
				msg = http.StatusText(code)
			}
			return &domain.APIError{StatusCode: code, Message: msg}
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("failed to decode response data: %w", err)
			}
		}
		return nil
	}
	if retry {
		return c.withReadRetry(ctx, call)
	}
	return call()
}

// withReadRetry runs call up to readAttempts times. Not-found and
// client-side input errors abort immediately.
func (c *Client) withReadRetry(ctx context.Context, call func() error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		err = call()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		if attempt < readAttempts {
			select {
			case <-ctx.Done():
				return classifyTransportErr(ctx.Err())
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
	}
	return err
}

// classifyTransportErr maps low-level failures onto the domain
// taxonomy: deadline and net timeouts become ErrTimeout, everything
// else network-shaped becomes ErrConnection.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrConnection, err)
}

func apiErrorFromResponse(resp *http.Response) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Message != "" {
		code := env.StatusCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &domain.APIError{StatusCode: code, Message: env.Message}
	}
	return &domain.APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
}
