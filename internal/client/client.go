package client

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

	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/models"
	"github.com/pkg/errors"
)

// APIError описывает ответ API с success=false.
type APIError struct {
	Status  int
	Kind    string
	Message string

	AcceptedLengths []carrier.Rule
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("scanbox http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("scanbox http %d %s: %s", e.Status, e.Kind, e.Message)
}

// Client ходит в /api scan-api от имени станции.
type Client struct {
	baseURL string
	token   string
	station string
	httpc   *http.Client
}

func New(baseURL, token, station string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		station: station,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`

	AcceptedLengths []carrier.Rule `json:"acceptedLengths"`
}

type Classification struct {
	TrackingNumber string         `json:"trackingNumber"`
	Carrier        models.Carrier `json:"carrier"`
}

func (c *Client) Submit(ctx context.Context, in models.ScanSubmitInput) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	body := map[string]string{"trackingNumber": in.TrackingNumber, "serialNumber": in.SerialNumber}
	if err := c.do(ctx, http.MethodPost, "/api/scans", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Get(ctx context.Context, id string) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	if err := c.do(ctx, http.MethodGet, "/api/scans/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/scans/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Carriers(ctx context.Context) ([]carrier.Rule, error) {
	var rules []carrier.Rule
	if err := c.do(ctx, http.MethodGet, "/api/carriers", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Client) Classify(ctx context.Context, trackingNumber string) (Classification, error) {
	var out Classification
	body := map[string]string{"trackingNumber": trackingNumber}
	if err := c.do(ctx, http.MethodPost, "/api/carriers/classify", body, &out); err != nil {
		return Classification{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.station != "" {
		req.Header.Set("X-Station-ID", c.station)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode/100 != 2 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return errors.Wrap(err, "decode")
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		return &APIError{
			Status:          resp.StatusCode,
			Kind:            env.Kind,
			Message:         env.Error,
			AcceptedLengths: env.AcceptedLengths,
		}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "decode data")
	}
	return nil
}
