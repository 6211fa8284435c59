package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	TemplatePathPrefix = "/api/public/templates/"
	SubmitPath         = "/api/blutic-svc/api/v1/public/consent-template/update-user"
	FramePathPrefix    = "/iframe/"
)

// TemplateSource fetches a template snapshot.
type TemplateSource interface {
	FetchTemplate(ctx context.Context, templateID, language, platform string) (Snapshot, error)
}

// ConsentSink stores a consent submission.
type ConsentSink interface {
	SubmitConsent(ctx context.Context, sub Submission) (Receipt, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Client talks to a deployment's public endpoints.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type publicEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (c *Client) FetchTemplate(ctx context.Context, templateID, language, platform string) (Snapshot, error) {
	q := url.Values{}
	q.Set("language", language)
	q.Set("platform", platform)
	endpoint := c.BaseURL + TemplatePathPrefix + url.PathEscape(templateID) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	var snap Snapshot
	if err := c.do(req, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("fetch template %s: %w", templateID, err)
	}
	return snap, nil
}

func (c *Client) SubmitConsent(ctx context.Context, sub Submission) (Receipt, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return Receipt{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+SubmitPath, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out Receipt
	if err := c.do(req, &out); err != nil {
		return Receipt{}, fmt.Errorf("submit consent: %w", err)
	}
	return out, nil
}

func (c *Client) do(req *http.Request, dst any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var env publicEnvelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return &StatusError{Code: resp.StatusCode, Message: env.Error}
	}
	if dst == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}
