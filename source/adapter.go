package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-scrape-market/config"
	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

// Adapter runs listing searches and detail lookups against one marketplace.
type Adapter struct {
	market  Marketplace
	rules   *parser.RuleSet
	client  *scraper.Client
	pager   *scraper.Pager
	retry   *scraper.RetryPolicy
	blocks  scraper.BlockList
	metrics *scraper.Metrics
	dedupe  int
	sleep   scraper.SleepFunc
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithRules replaces the marketplace's built-in rule set.
func WithRules(rs *parser.RuleSet) Option {
	return func(a *Adapter) {
		if rs != nil {
			a.rules = rs
		}
	}
}

// WithBlockList enables host cool-down after exhausted challenge retries.
func WithBlockList(b scraper.BlockList) Option {
	return func(a *Adapter) {
		a.blocks = b
	}
}

// WithSleep replaces both retry and politeness sleeps.
func WithSleep(fn scraper.SleepFunc) Option {
	return func(a *Adapter) {
		a.sleep = fn
	}
}

// New builds an adapter sharing transport with any other adapters.
func New(m Marketplace, transport *scraper.Transport, cfg *config.Config, metrics *scraper.Metrics, opts ...Option) *Adapter {
	a := &Adapter{
		market:  m,
		rules:   m.Rules(),
		metrics: metrics,
		dedupe:  cfg.DedupeMaxSize,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.retry = scraper.NewRetryPolicy(cfg, metrics)
	fetcher := transport.WithBlockDetector(a.rules.Blocked.Match)
	a.client = scraper.NewClient(fetcher, a.retry, a.blocks)
	a.pager = scraper.NewPager(a.client, cfg.MaxPages, metrics)
	if a.sleep != nil {
		a.retry.Sleep = a.sleep
		a.pager.SetSleep(a.sleep)
	}
	return a
}

// Name is the marketplace name.
func (a *Adapter) Name() string {
	return a.market.Name()
}

// SearchListing pages through the marketplace's search results for query
// until limit records are collected or the results run out.
func (a *Adapter) SearchListing(ctx context.Context, query string, limit int) (models.Listing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Listing{}, errors.New("empty query")
	}
	if limit <= 0 {
		return models.Listing{}, fmt.Errorf("limit must be positive, got %d", limit)
	}

	collector := parser.NewCollector(&a.rules.Listing, limit, a.dedupe)
	req := scraper.PageRequest{
		StartURL: a.market.ListingURL(query),
		PerPage:  a.market.ItemsPerPage(),
		Limit:    limit,
		Next:     scraper.NextLink(a.rules.NextPage),
		Delay:    a.market.Politeness(),
	}

	var listing models.Listing
	for doc, err := range a.pager.Pages(ctx, req) {
		if err != nil {
			if listing.Pages == 0 {
				return models.Listing{}, fmt.Errorf("search %q: %w", query, err)
			}
			reason := stopReason(err)
			slog.Warn("keeping partial results after page failure",
				slog.String("platform", a.market.Name()),
				slog.String("query", query),
				slog.Int("pages", listing.Pages),
				slog.String("reason", reason),
				slog.Any("error", err),
			)
			listing.Warnings = append(listing.Warnings, fmt.Sprintf("stopped after page %d, next page %s: %v", listing.Pages, reason, err))
			break
		}
		listing.Pages++
		collector.Add(doc)
		if collector.Full() {
			break
		}
	}

	listing.Records = collector.Records()
	for _, err := range collector.Skipped() {
		listing.Warnings = append(listing.Warnings, err.Error())
	}
	a.metrics.AddItems(string(models.ModeListing), len(listing.Records))
	a.metrics.AddSkipped(len(collector.Skipped()))

	slog.Info("listing search finished",
		slog.String("platform", a.market.Name()),
		slog.String("query", query),
		slog.Int("pages", listing.Pages),
		slog.Int("records", len(listing.Records)),
		slog.Int("skipped", len(collector.Skipped())),
		slog.Int("duplicates", collector.Duplicates()),
	)
	return listing, nil
}

func stopReason(err error) string {
	switch {
	case scraper.IsTransient(err):
		return "kept failing"
	case scraper.IsBlocked(err):
		return "was blocked"
	case scraper.IsPermanent(err):
		return "is unavailable"
	default:
		return "failed"
	}
}

// FetchDetail looks up a single product by identifier or URL. Invalid input
// fails before any request is made.
func (a *Adapter) FetchDetail(ctx context.Context, input string) (models.DetailRecord, error) {
	input = strings.TrimSpace(input)
	target, err := a.market.DetailURL(input)
	if err != nil {
		return models.DetailRecord{}, err
	}

	out := a.client.Fetch(ctx, target)
	if err := out.Failure(); err != nil {
		return models.DetailRecord{}, fmt.Errorf("fetch %q: %w", input, err)
	}

	rec, err := parser.ExtractDetail(out.Doc, &a.rules.Detail, a.market.CanonicalID(input))
	if err != nil {
		a.metrics.AddSkipped(1)
		return models.DetailRecord{}, fmt.Errorf("extract %q: %w", input, err)
	}
	a.metrics.AddItems(string(models.ModeDetail), 1)
	return rec, nil
}
