// Package woocommerce is the storefront's client for the headless store: the
// CoCart v2 cart API, the WooCommerce REST v3 catalog, order and customer API,
// and the free-gift rules endpoint.
package woocommerce

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
)

const (
	serviceName = "woocommerce"
	restPath    = "/wp-json/wc/v3"

	// CartKeyHeader is returned by CoCart with the guest cart key.
	CartKeyHeader = "CoCart-API-Cart-Key"
)

// Config holds the store endpoints and REST credentials.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	CoCartPath     string
	RulesPath      string
	MaxPages       int
}

// Client talks to WooCommerce through a retrying, circuit-broken HTTP client.
type Client struct {
	doer   httpclient.Doer
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. doer is normally a *httpclient.CircuitBreakerClient.
func New(cfg Config, doer httpclient.Doer, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CoCartPath == "" {
		cfg.CoCartPath = "/wp-json/cocart/v2"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Client{doer: doer, cfg: cfg, logger: logger}
}

// NewHTTPClient builds the breaker-wrapped client used for store calls. When
// chromeTLS is set the transport presents a Chrome TLS fingerprint.
func NewHTTPClient(httpCfg httpclient.Config, cbCfg httpclient.CircuitBreakerConfig, chromeTLS bool, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	if chromeTLS {
		httpCfg.Transport = NewChromeTransport(httpCfg.Timeout)
	}
	return httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cbCfg, logger)
}

func (c *Client) cartURL(path string, ref cartQuery) string {
	q := url.Values{}
	if ref.key != "" {
		q.Set("cart_key", ref.key)
	}
	if ref.currency != "" {
		q.Set("currency", ref.currency)
	}
	if ref.locale != "" {
		q.Set("lang", ref.locale)
	}
	u := c.cfg.BaseURL + c.cfg.CoCartPath + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) restURL(path string, q url.Values) string {
	u := c.cfg.BaseURL + restPath + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) restHeader() http.Header {
	h := http.Header{}
	if c.cfg.ConsumerKey != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
		h.Set("Authorization", "Basic "+cred)
	}
	return h
}

func (c *Client) rest(ctx context.Context, method, path string, q url.Values, body, out any) error {
	return httpclient.DoJSON(ctx, c.doer, httpclient.JSONRequest{
		Method:  method,
		URL:     c.restURL(path, q),
		Header:  c.restHeader(),
		Body:    body,
		Service: serviceName,
	}, out)
}

// Ping checks the store answers at all; used by readiness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL+"/wp-json/", http.NoBody)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("ping woocommerce: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}
