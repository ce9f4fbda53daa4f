package crawler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/webgraph/internal/content"
)

// Response is the status line and headers returned by a probe
type Response struct {
	StatusCode int
	Header     http.Header
}

// Transport performs the network requests of a crawl. Implementations must not
// follow redirects.
type Transport interface {
	// Probe issues a status-only request (HEAD)
	Probe(ctx context.Context, rawURL string) (Response, error)
	// FetchBody downloads the document, returning "" on any failure
	FetchBody(ctx context.Context, rawURL string) string
}

// ContentScanner extracts the parts of an HTML document the crawler needs
type ContentScanner interface {
	Scan(html string) content.Page
}

// ProbeStatus is the classification of a probe outcome
type ProbeStatus int

const (
	ProbeOK ProbeStatus = iota
	ProbeRedirect
	ProbeBroken
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeOK:
		return "ok"
	case ProbeRedirect:
		return "redirect"
	case ProbeBroken:
		return "broken"
	}
	return "unknown"
}

// ProbeResult is a classified probe outcome
type ProbeResult struct {
	Status      ProbeStatus
	StatusCode  int
	Location    string
	HasLocation bool
	ContentType string
}

// Classify turns a transport outcome into a ProbeResult: errors and statuses
// >= 400 are broken, 301/302 are redirects, anything else is ok
func Classify(resp Response, err error) ProbeResult {
	if err != nil {
		return ProbeResult{Status: ProbeBroken}
	}
	result := ProbeResult{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode >= 400:
		result.Status = ProbeBroken
	case resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound:
		result.Status = ProbeRedirect
		if values := resp.Header.Values("Location"); len(values) > 0 {
			result.Location = values[0]
			result.HasLocation = true
		}
	default:
		result.Status = ProbeOK
		result.ContentType = mediaType(resp.Header.Get("Content-Type"))
	}
	return result
}

// mediaType strips parameters such as charset from a Content-Type value
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// probe checks the URL once, bounded by the crawler's worker semaphore
func (c *Crawler) probe(ctx context.Context, target CanonicalURL) (ProbeResult, error) {
	if err := c.acquire(ctx); err != nil {
		return ProbeResult{}, err
	}
	defer c.release()

	start := time.Now()
	resp, err := c.transport.Probe(ctx, target.String())
	result := Classify(resp, err)
	c.recorder.RecordProbe(result.Status == ProbeBroken, time.Since(start))

	log := c.log.WithField("url", target.String())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ProbeResult{}, ctxErr
		}
		log.WithError(err).Debug("failed")
	} else {
		log.WithFields(logrus.Fields{"status": result.StatusCode, "outcome": result.Status.String()}).Debug("done")
	}
	return result, nil
}

// scan downloads and inspects a page; only "text/html" documents are read.
// Failures yield an empty page.
func (c *Crawler) scan(ctx context.Context, target CanonicalURL, contentType string) content.Page {
	if contentType != "text/html" {
		return content.Page{}
	}
	if err := c.acquire(ctx); err != nil {
		return content.Page{}
	}
	start := time.Now()
	body := c.transport.FetchBody(ctx, target.String())
	c.release()
	c.recorder.RecordFetch(time.Since(start))

	if body == "" {
		return content.Page{}
	}
	return c.scanner.Scan(body)
}
