package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// TransportConfig controls the colly-backed transport
type TransportConfig struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// CollyTransport implements Transport with a Colly collector that never follows
// redirects and reports every status code, including errors, as a response
type CollyTransport struct {
	collector *colly.Collector
}

// NewCollyTransport builds a transport from cfg; zero timeouts fall back to 5s/30s
func NewCollyTransport(cfg TransportConfig) *CollyTransport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxDepth(0), // depth is managed by the crawler
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	})
	c.SetRequestTimeout(cfg.ReadTimeout)
	c.SetRedirectHandler(func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	})

	return &CollyTransport{collector: c}
}

// Probe issues a HEAD request
func (t *CollyTransport) Probe(ctx context.Context, rawURL string) (Response, error) {
	resp, err := t.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return Response{}, err
	}
	out := Response{StatusCode: resp.StatusCode, Header: http.Header{}}
	if resp.Headers != nil {
		out.Header = resp.Headers.Clone()
	}
	return out, nil
}

// FetchBody issues a GET request and returns the body of a non-error response
func (t *CollyTransport) FetchBody(ctx context.Context, rawURL string) string {
	resp, err := t.do(ctx, http.MethodGet, rawURL)
	if err != nil || resp.StatusCode >= 400 {
		return ""
	}
	return string(resp.Body)
}

func (t *CollyTransport) do(ctx context.Context, method, rawURL string) (*colly.Response, error) {
	collector := t.collector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true

	var (
		result   *colly.Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = r
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		if method == http.MethodHead {
			done <- collector.Head(rawURL)
			return
		}
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("colly %s canceled: %w", method, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("colly %s failed: %w", method, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if result == nil {
			return nil, errors.New("colly returned no response")
		}
		return result, nil
	}
}
