package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carrier-service/metrics"
)

// maxResponseSize limits carrier response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024

// defaultHTTPTimeout applies when Options carries no HTTP client.
const defaultHTTPTimeout = 15 * time.Second

// request is one outbound carrier call. Path is joined to the client's base
// URL unless it is already absolute.
type request struct {
	Method    string
	Path      string
	Body      []byte
	Headers   map[string]string
	BasicUser string
	BasicPass string
}

// vendorClient performs carrier HTTP calls and converts non-2xx replies into
// CarrierError.
type vendorClient struct {
	carrier    string
	baseURL    string
	httpClient *http.Client
}

func newVendorClient(carrier, baseURL string, hc *http.Client) *vendorClient {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &vendorClient{
		carrier:    carrier,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

func (c *vendorClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

func (c *vendorClient) do(ctx context.Context, operation string, r request) (respBody []byte, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCarrierCall(c.carrier, operation, start, err) }()

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.url(r.Path), body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: create request: %w", c.carrier, operation, err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.BasicUser != "" {
		req.SetBasicAuth(r.BasicUser, r.BasicPass)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: http do: %w", c.carrier, operation, err)
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", c.carrier, operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CarrierError{
			Carrier:    c.carrier,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// doJSON marshals in (when non-nil), performs the call and decodes into out
// (when non-nil).
func (c *vendorClient) doJSON(ctx context.Context, operation string, r request, in, out interface{}) error {
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: marshal request: %w", c.carrier, operation, err)
		}
		r.Body = b
	}
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	if _, ok := r.Headers["Content-Type"]; !ok && r.Body != nil {
		r.Headers["Content-Type"] = "application/json"
	}
	if _, ok := r.Headers["Accept"]; !ok {
		r.Headers["Accept"] = "application/json"
	}

	respBody, err := c.do(ctx, operation, r)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %v", c.carrier, operation, ErrInvalidResponse, err)
	}
	return nil
}

// doXML is the XML counterpart of doJSON.
func (c *vendorClient) doXML(ctx context.Context, operation string, r request, in, out interface{}) error {
	if in != nil {
		b, err := xml.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: marshal request: %w", c.carrier, operation, err)
		}
		r.Body = append([]byte(xml.Header), b...)
	}

	respBody, err := c.do(ctx, operation, r)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := xml.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w: %v", c.carrier, operation, ErrInvalidResponse, err)
	}
	return nil
}
