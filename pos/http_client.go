package pos

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClientConfig configures the transport collaborator of a gateway.
type HTTPClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
}

// HTTPResponse is the raw outcome of a bank round trip. Parsing is left to
// the gateway's response parser.
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPClient sends gateway payloads to bank endpoints. It owns timeouts and
// TLS settings; it never retries, per the transport contract.
type HTTPClient struct {
	bank   string
	config *HTTPClientConfig
	client *http.Client
}

// NewHTTPClient creates a transport client for a gateway.
func NewHTTPClient(bank string, config *HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		bank:   bank,
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// NewHTTPClientConfig builds the standard transport config for an account
// environment. Bank test endpoints commonly run with self-signed chains,
// so verification is skipped outside production.
func NewHTTPClientConfig(env Environment) *HTTPClientConfig {
	return &HTTPClientConfig{
		Timeout:            30 * time.Second,
		InsecureSkipVerify: env != EnvProduction,
		DefaultHeaders: map[string]string{
			"User-Agent": "GoPos/1.0",
		},
	}
}

// PostXML sends a raw XML document to the endpoint.
func (c *HTTPClient) PostXML(ctx context.Context, endpoint string, body []byte) (*HTTPResponse, error) {
	return c.post(ctx, endpoint, strings.NewReader(string(body)), "text/xml; charset=UTF-8")
}

// PostForm sends url-encoded form values to the endpoint. Banks that wrap
// XML in a form field (PosNet xmldata, PayFlex prmstr) go through here.
func (c *HTTPClient) PostForm(ctx context.Context, endpoint string, values url.Values) (*HTTPResponse, error) {
	return c.post(ctx, endpoint, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body io.Reader, contentType string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, &TransportError{Bank: c.bank, Err: err}
	}

	for key, value := range c.config.DefaultHeaders {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Bank: c.bank, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Bank: c.bank, Err: err}
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}
