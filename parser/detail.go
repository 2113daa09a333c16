package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/models"
)

var defaultRankRe = regexp.MustCompile(defaultRankPattern)

// ExtractDetail reads a product page. The record is all or nothing: a
// missing required field or any structural failure returns an error and
// no record.
func ExtractDetail(doc *goquery.Document, rules *DetailRules, identifier string) (rec models.DetailRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = models.DetailRecord{}
			err = &ExtractionError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if doc == nil || rules == nil {
		return models.DetailRecord{}, &ExtractionError{Err: errors.New("no document")}
	}
	root, base := doc.Selection, doc.Url

	rec.Identifier = strings.TrimSpace(identifier)
	if rec.Identifier == "" {
		rec.Identifier = models.NotAvailable
	}

	fields := []struct {
		name string
		rule *FieldRule
		dst  *string
	}{
		{"title", &rules.Title, &rec.Title},
		{"price", &rules.Price, &rec.Price},
		{"rating", &rules.Rating, &rec.Rating},
		{"review_count", &rules.ReviewCount, &rec.ReviewCount},
		{"recency_signal", &rules.RecencySignal, &rec.RecencySignal},
	}
	for _, f := range fields {
		v, ok := f.rule.Extract(root, base)
		if !ok {
			if f.rule.Required {
				return models.DetailRecord{}, &ExtractionError{Field: f.name, Err: ErrMissingField}
			}
			v = models.NotAvailable
		}
		*f.dst = v
	}

	rec.Link = detailLink(rules.LinkTemplate, rec.Identifier, base)
	rec.CategoryRanks = extractRanks(doc, &rules.Ranks)
	rec.StockStatus = extractStock(root, base, &rules.Stock)
	return rec, nil
}

func detailLink(template, identifier string, base *url.URL) string {
	if template != "" && identifier != models.NotAvailable {
		return strings.ReplaceAll(template, "{value}", identifier)
	}
	if base != nil {
		return base.String()
	}
	return models.NotAvailable
}

func extractRanks(doc *goquery.Document, rules *RankRules) []string {
	re := rules.re
	if re == nil {
		re = defaultRankRe
	}

	for _, src := range rules.Sources {
		scope := doc.Selection
		if src.Container != "" {
			scope = doc.Find(src.Container)
		}
		items := scope
		if src.Item != "" {
			items = scope.Find(src.Item)
		}

		var ranks []string
		items.Each(func(_ int, item *goquery.Selection) {
			text := item.Text()
			if src.Contains != "" && !containsFold(text, src.Contains) {
				return
			}
			if src.Text != "" {
				text = item.Find(src.Text).Text()
			}
			ranks = append(ranks, parseRanks(text, re)...)
		})
		if len(ranks) > 0 {
			return ranks
		}
	}
	return []string{}
}

// ParseRanks finds every "#<number> in <category>" in text and normalizes
// it, dropping thousands separators from the number.
func ParseRanks(text string) []string {
	return parseRanks(text, defaultRankRe)
}

func parseRanks(text string, re *regexp.Regexp) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(cleanText(text), -1) {
		rank := strings.ReplaceAll(m[1], ",", "")
		category := strings.TrimSpace(m[2])
		if rank == "" || category == "" {
			continue
		}
		out = append(out, fmt.Sprintf("#%s in %s", rank, category))
	}
	return out
}

func extractStock(root *goquery.Selection, base *url.URL, rules *StockRules) models.StockStatus {
	text, ok := rules.Text.Extract(root, base)
	if !ok {
		return models.StockUnknown
	}

	inStock := rules.InStock
	if len(inStock) == 0 {
		inStock = []string{"in stock"}
	}
	outOfStock := rules.OutOfStock
	if len(outOfStock) == 0 {
		outOfStock = []string{"unavailable"}
	}

	// "Currently unavailable ... back in stock" must not read as in stock.
	for _, phrase := range outOfStock {
		if containsFold(text, phrase) {
			return models.OutOfStock
		}
	}
	for _, phrase := range inStock {
		if containsFold(text, phrase) {
			return models.InStock
		}
	}
	return models.StockUnknown
}
