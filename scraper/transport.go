package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Fetcher retrieves and classifies one page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) Outcome
}

// BlockDetector reports whether a fetched page is an anti-automation challenge.
type BlockDetector func(doc *goquery.Document) bool

// Transport issues single GET requests through a shared colly collector.
type Transport struct {
	collector *colly.Collector
	headers   HeaderSource
	limiter   *rate.Limiter
	detect    BlockDetector
	metrics   *Metrics
}

// NewTransport builds a synchronous collector configured from cfg.
func NewTransport(cfg *config.Config, metrics *Metrics) (*Transport, error) {
	collector := colly.NewCollector()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	collector.SetCookieJar(jar)

	t := &Transport{
		collector: collector,
		headers:   DefaultHeaderPool(),
		metrics:   metrics,
	}
	if cfg.RequestsPerSecond > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	t.configureHandlers()
	return t, nil
}

// SetRoundTripper replaces the HTTP transport used by the collector.
func (t *Transport) SetRoundTripper(rt http.RoundTripper) {
	t.collector.WithTransport(rt)
}

// SetHeaderSource replaces the header pool.
func (t *Transport) SetHeaderSource(h HeaderSource) {
	t.headers = h
}

// WithBlockDetector returns a transport sharing the same collector that
// classifies pages matching detect as Blocked.
func (t *Transport) WithBlockDetector(detect BlockDetector) *Transport {
	clone := *t
	clone.detect = detect
	return &clone
}

func (t *Transport) configureHandlers() {
	t.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	t.collector.OnResponse(func(r *colly.Response) {
		storeResponse(r)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			t.metrics.ObserveDuration(time.Since(start))
		}
	})

	t.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		storeResponse(r)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			t.metrics.ObserveDuration(time.Since(start))
		}
	})
}

func storeResponse(r *colly.Response) {
	r.Ctx.Put("status", r.StatusCode)
	r.Ctx.Put("body", r.Body)
	if r.Headers != nil {
		r.Ctx.Put("content_type", r.Headers.Get("Content-Type"))
	}
	if r.Request != nil && r.Request.URL != nil {
		r.Ctx.Put("final_url", r.Request.URL.String())
	}
}

// Fetch performs one GET and classifies the result. It never retries.
func (t *Transport) Fetch(ctx context.Context, rawURL string) Outcome {
	out := t.fetch(ctx, rawURL)
	label := out.Kind.String()
	t.metrics.IncRequest(label)
	if out.Kind != Success {
		category := errorTypeLabel(out.Err)
		t.metrics.IncError(category)
		slog.Debug("request failed",
			slog.String("url", rawURL),
			slog.String("outcome", label),
			slog.String("category", category),
			slog.Int("status", out.StatusCode),
			slog.Any("error", out.Err),
		)
	}
	return out
}

func (t *Transport) fetch(ctx context.Context, rawURL string) Outcome {
	out := Outcome{URL: rawURL, Attempts: 1}
	if err := ctx.Err(); err != nil {
		out.Kind, out.Err = Permanent, err
		return out
	}

	target, err := parseTarget(rawURL)
	if err != nil {
		out.Kind, out.Err = Permanent, err
		return out
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			out.Kind, out.Err = Permanent, err
			return out
		}
	}

	var hdr http.Header
	if t.headers != nil {
		hdr = t.headers.Headers()
	}

	reqCtx := colly.NewContext()
	done := make(chan error, 1)
	go func() {
		done <- t.collector.Request(http.MethodGet, target.String(), nil, reqCtx, hdr)
	}()

	var reqErr error
	select {
	case <-ctx.Done():
		// The request keeps running until the collector timeout but its result is dropped.
		out.Kind, out.Err = Permanent, ctx.Err()
		return out
	case reqErr = <-done:
	}

	status, _ := reqCtx.GetAny("status").(int)
	out.StatusCode = status
	out.Kind, out.Err = classifyError(reqErr, status)
	if out.Kind != Success {
		return out
	}

	body, _ := reqCtx.GetAny("body").([]byte)
	contentType, _ := reqCtx.GetAny("content_type").(string)
	docURL := target
	if final, ok := reqCtx.GetAny("final_url").(string); ok {
		if parsed, err := url.Parse(final); err == nil {
			docURL = parsed
		}
	}

	doc, err := parseDocument(body, contentType, docURL)
	if err != nil {
		out.Kind, out.Err = Transient, ErrConnection{Err: err}
		return out
	}
	if t.detect != nil && t.detect(doc) {
		out.Kind, out.Err = Blocked, ErrBlocked
		return out
	}
	out.Doc = doc
	return out
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

func parseDocument(body []byte, contentType string, u *url.URL) (*goquery.Document, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc.Url = u
	return doc, nil
}
