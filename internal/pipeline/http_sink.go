package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	httpErrorBodyLimit   = 2048
	httpDiscardBodyLimit = 64 << 10
)

// HTTPSinkConfig describes one HTTP ingestion endpoint.
// Params: URL, optional bearer token, extra headers, body encoding/compression, client timeout,
// and optional client override.
// Returns: HTTP sink settings.
type HTTPSinkConfig struct {
	URL         string
	Token       string
	Headers     map[string]string
	Encoding    string
	Compression string
	Timeout     time.Duration
	Client      *http.Client
}

// HTTPSink posts batches as JSON (or CBOR) arrays.
type HTTPSink struct {
	url     string
	token   string
	headers map[string]string
	codec   payloadCodec
	client  *http.Client
}

// NewHTTPSink validates endpoint settings and builds the sink.
// Params: cfg endpoint settings.
// Returns: HTTP sink or error on invalid URL.
func NewHTTPSink(cfg HTTPSinkConfig) (*HTTPSink, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", endpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("url %q must use http or https", endpoint)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("url %q has no host", endpoint)
	}

	codec, err := newPayloadCodec(cfg.Encoding, cfg.Compression)
	if err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	headers := make(map[string]string, len(cfg.Headers))
	for key, value := range cfg.Headers {
		headers[key] = value
	}

	return &HTTPSink{
		url:     endpoint,
		token:   strings.TrimSpace(cfg.Token),
		headers: headers,
		codec:   codec,
		client:  client,
	}, nil
}

// Send posts one batch.
// Params: ctx request context; batch payload.
// Returns: transient error on transport/408/429/5xx, fatal error on encode or other non-2xx status.
func (s *HTTPSink) Send(ctx context.Context, batch []MetricPoint) error {
	payload, err := s.codec.encode(batch)
	if err != nil {
		return Fatal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", s.codec.contentType())
	if encoding := s.codec.contentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("POST %s: %w", s.url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, httpDiscardBodyLimit))
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
	statusErr := fmt.Errorf("POST %s: unexpected status %s", s.url, resp.Status)
	if bodyText := strings.TrimSpace(string(body)); bodyText != "" {
		statusErr = fmt.Errorf("POST %s: unexpected status %s: %s", s.url, resp.Status, bodyText)
	}

	if retryableHTTPStatus(resp.StatusCode) {
		return Transient(statusErr)
	}
	return Fatal(statusErr)
}

// retryableHTTPStatus reports whether a non-2xx status is worth retrying.
// Params: code HTTP status code.
// Returns: true for 408, 429, and 5xx.
func retryableHTTPStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
