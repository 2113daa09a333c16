// Package parser turns fetched documents into product records using
// declarative, per-marketplace rule tables.
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

// ErrMissingField marks an item whose required field could not be read.
var ErrMissingField = errors.New("required field missing")

// ExtractionError describes one item that was skipped. Item is the 1-based
// container position for listings and zero for detail pages.
type ExtractionError struct {
	Item  int
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	if e.Item > 0 {
		fmt.Fprintf(&b, "item %d: ", e.Item)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "%s: ", e.Field)
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extract returns the value of the first strategy that yields one.
func (r *FieldRule) Extract(scope *goquery.Selection, base *url.URL) (string, bool) {
	for i := range r.Strategies {
		if v, ok := r.Strategies[i].apply(scope, base); ok {
			return v, true
		}
	}
	return "", false
}

func (st *Strategy) apply(scope *goquery.Selection, base *url.URL) (string, bool) {
	nodes := scope
	if st.Selector != "" {
		nodes = scope.Find(st.Selector)
	}

	var value string
	var found bool
	nodes.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		raw := ""
		if st.Attr != "" {
			v, ok := node.Attr(st.Attr)
			if !ok {
				return true
			}
			raw = v
		} else {
			raw = node.Text()
		}
		value, found = st.refine(raw, base)
		return !found
	})
	return value, found
}

func (st *Strategy) refine(raw string, base *url.URL) (string, bool) {
	if st.Contains != "" && !containsFold(raw, st.Contains) {
		return "", false
	}
	v := cleanText(raw)

	if st.Pattern != "" {
		re := st.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(st.Pattern); err != nil {
				return "", false
			}
		}
		m := re.FindStringSubmatch(v)
		if m == nil {
			return "", false
		}
		v = m[0]
		if len(m) > 1 {
			v = m[1]
		}
	}
	if st.Trim != "" {
		v = strings.TrimSpace(strings.Trim(v, st.Trim))
	}
	if v == "" {
		return "", false
	}
	if st.Validate != "" {
		valid, ok := validators[st.Validate]
		if !ok || !valid(v) {
			return "", false
		}
	}
	if st.Template != "" {
		v = strings.ReplaceAll(st.Template, "{value}", v)
	}
	if st.Resolve {
		ref, err := url.Parse(v)
		if err != nil {
			return "", false
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		v = ref.String()
	}
	return v, true
}

// ExtractListing reads at most remaining records from doc in document order.
// Ranks are left at zero for the caller to assign. Items that cannot be read
// are returned as *ExtractionError and skipped.
func ExtractListing(doc *goquery.Document, rules *ListingRules, remaining int) ([]models.ListingRecord, []error) {
	if doc == nil || rules == nil || remaining <= 0 {
		return nil, nil
	}

	var records []models.ListingRecord
	var errs []error
	doc.Find(rules.Container).EachWithBreak(func(i int, item *goquery.Selection) bool {
		rec, err := extractItem(item, rules, doc.Url, i+1)
		if err != nil {
			errs = append(errs, err)
			return true
		}
		records = append(records, rec)
		return len(records) < remaining
	})
	return records, errs
}

func extractItem(item *goquery.Selection, rules *ListingRules, base *url.URL, pos int) (rec models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = models.ListingRecord{}
			err = &ExtractionError{Item: pos, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	fields := []struct {
		name string
		rule *FieldRule
		dst  *string
	}{
		{"identifier", &rules.Identifier, &rec.Identifier},
		{"title", &rules.Title, &rec.Title},
		{"price", &rules.Price, &rec.Price},
		{"link", &rules.Link, &rec.Link},
		{"rating", &rules.Rating, &rec.Rating},
		{"review_count", &rules.ReviewCount, &rec.ReviewCount},
		{"recency_signal", &rules.RecencySignal, &rec.RecencySignal},
	}
	for _, f := range fields {
		v, ok := f.rule.Extract(item, base)
		if !ok {
			if f.rule.Required {
				return models.ListingRecord{}, &ExtractionError{Item: pos, Field: f.name, Err: ErrMissingField}
			}
			v = models.NotAvailable
		}
		*f.dst = v
	}

	rec.Placement = models.Organic
	for i := range rules.Sponsored {
		if _, ok := rules.Sponsored[i].apply(item, base); ok {
			rec.Placement = models.Sponsored
			break
		}
	}
	return rec, nil
}
