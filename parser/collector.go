package parser

import (
	"log/slog"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-market/models"
)

// Collector accumulates listing records across the pages of one query,
// numbering them as they are appended. A product repeated in the same
// placement is dropped; its sponsored and organic slots are both kept.
type Collector struct {
	rules   *ListingRules
	limit   int
	seen    *lru.Cache[string, struct{}]
	records []models.ListingRecord
	skipped []error
	dupes   int
}

// NewCollector returns a collector that stops at limit records.
func NewCollector(rules *ListingRules, limit, dedupeSize int) *Collector {
	if dedupeSize <= 0 {
		dedupeSize = 1024
	}
	seen, _ := lru.New[string, struct{}](dedupeSize)
	return &Collector{
		rules:   rules,
		limit:   limit,
		seen:    seen,
		records: []models.ListingRecord{},
	}
}

// Add extracts doc and appends its new records. It returns how many were added.
func (c *Collector) Add(doc *goquery.Document) int {
	if c.Full() {
		return 0
	}

	// Extract up to the full limit so repeated items do not leave the page short.
	recs, errs := ExtractListing(doc, c.rules, c.limit)
	for _, err := range errs {
		slog.Debug("skipping listing item", slog.Any("error", err))
	}
	c.skipped = append(c.skipped, errs...)

	added := 0
	for _, rec := range recs {
		if c.Full() {
			break
		}
		if rec.Identifier != models.NotAvailable {
			key := string(rec.Placement) + ":" + rec.Identifier
			if c.seen.Contains(key) {
				c.dupes++
				continue
			}
			c.seen.Add(key, struct{}{})
		}
		rec.Rank = len(c.records) + 1
		c.records = append(c.records, rec)
		added++
	}
	return added
}

// Remaining is the number of records still wanted.
func (c *Collector) Remaining() int {
	if n := c.limit - len(c.records); n > 0 {
		return n
	}
	return 0
}

// Full reports whether the limit has been reached.
func (c *Collector) Full() bool {
	return c.Remaining() == 0
}

// Records returns the collected records, ranked 1..n.
func (c *Collector) Records() []models.ListingRecord {
	out := make([]models.ListingRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Skipped returns the extraction errors seen so far.
func (c *Collector) Skipped() []error {
	return c.skipped
}

// Duplicates is the number of records dropped as repeats.
func (c *Collector) Duplicates() int {
	return c.dupes
}
