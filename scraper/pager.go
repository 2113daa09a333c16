package scraper

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Window bounds a randomized politeness delay.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a delay drawn uniformly from the window.
func (w Window) Pick() time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + rand.N(w.Max-w.Min)
}

// NextLink lists selectors for the next-page anchor, tried in order.
type NextLink []string

// Find returns the absolute next-page URL, resolved against the document URL.
func (n NextLink) Find(doc *goquery.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, selector := range n {
		var href string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr("href"); ok && strings.TrimSpace(v) != "" {
				href = strings.TrimSpace(v)
				return false
			}
			return true
		})
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		if doc.Url != nil {
			ref = doc.Url.ResolveReference(ref)
		}
		if !ref.IsAbs() {
			continue
		}
		return ref.String(), true
	}
	return "", false
}

// PageRequest describes one listing traversal.
type PageRequest struct {
	StartURL string
	PerPage  int
	Limit    int
	Next     NextLink
	Delay    Window
}

// Pager walks a listing's pages one after another.
type Pager struct {
	fetcher  Fetcher
	maxPages int
	sleep    SleepFunc
	metrics  *Metrics
}

// NewPager builds a pager. maxPages caps every traversal.
func NewPager(fetcher Fetcher, maxPages int, metrics *Metrics) *Pager {
	return &Pager{
		fetcher:  fetcher,
		maxPages: maxPages,
		sleep:    SleepContext,
		metrics:  metrics,
	}
}

// SetSleep replaces the politeness sleep.
func (p *Pager) SetSleep(fn SleepFunc) {
	p.sleep = fn
}

// Pages yields fetched documents in order. Traversal stops when the page
// estimate covers the limit, when no next link exists, at the page ceiling,
// or when the consumer stops. A fetch failure is yielded once and ends it.
func (p *Pager) Pages(ctx context.Context, req PageRequest) iter.Seq2[*goquery.Document, error] {
	return func(yield func(*goquery.Document, error) bool) {
		current := req.StartURL
		for page := 1; ; page++ {
			out := p.fetcher.Fetch(ctx, current)
			if err := out.Failure(); err != nil {
				yield(nil, fmt.Errorf("page %d: %w", page, err))
				return
			}
			p.metrics.IncPages()
			slog.Debug("fetched listing page", slog.Int("page", page), slog.String("url", current))

			if !yield(out.Doc, nil) {
				return
			}
			if req.PerPage > 0 && page*req.PerPage >= req.Limit {
				return
			}
			if p.maxPages > 0 && page >= p.maxPages {
				slog.Debug("page ceiling reached", slog.Int("pages", page))
				return
			}

			next, ok := req.Next.Find(out.Doc)
			if !ok {
				slog.Debug("no next page", slog.Int("pages", page))
				return
			}
			if next == current {
				return
			}
			if err := p.sleep(ctx, req.Delay.Pick()); err != nil {
				yield(nil, fmt.Errorf("page %d: %w", page+1, err))
				return
			}
			current = next
		}
	}
}
