// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotAvailable is the placeholder for any field that could not be extracted.
const NotAvailable = "N/A"

// Mode selects between listing search and single-item lookup.
type Mode string

const (
	ModeListing Mode = "listing"
	ModeDetail  Mode = "detail"
)

// ParseMode accepts the canonical mode names and the legacy rank/product aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "listing", "rank":
		return ModeListing, nil
	case "detail", "product":
		return ModeDetail, nil
	default:
		return "", fmt.Errorf("unknown type %q: must be listing, detail, rank or product", s)
	}
}

// Query is one keyword or identifier issued against a source.
type Query struct {
	Text string
	Mode Mode
}

// NewQueries splits a comma separated list into queries, dropping blank entries.
func NewQueries(list string, mode Mode) []Query {
	var out []Query
	for _, part := range strings.Split(list, ",") {
		text := strings.TrimSpace(part)
		if text == "" {
			continue
		}
		out = append(out, Query{Text: text, Mode: mode})
	}
	return out
}

// Placement tells whether a listing entry was paid for.
type Placement string

const (
	Organic   Placement = "Organic"
	Sponsored Placement = "Sponsored"
)

// StockStatus is the tri-state availability of a product.
type StockStatus string

const (
	InStock      StockStatus = "InStock"
	OutOfStock   StockStatus = "OutOfStock"
	StockUnknown StockStatus = "Unknown"
)

// Record is any exportable product record.
type Record interface {
	Columns() []string
	Row() []string
}

// ListingRecord is one entry of a search result page.
type ListingRecord struct {
	Rank          int       `json:"rank"`
	Identifier    string    `json:"identifier"`
	Title         string    `json:"title"`
	Price         string    `json:"price"`
	Link          string    `json:"link"`
	Rating        string    `json:"rating"`
	ReviewCount   string    `json:"review_count"`
	RecencySignal string    `json:"recency_signal"`
	Placement     Placement `json:"placement"`
}

func (r ListingRecord) Columns() []string {
	return []string{"rank", "identifier", "title", "price", "link", "rating", "review_count", "recency_signal", "placement"}
}

func (r ListingRecord) Row() []string {
	return []string{
		strconv.Itoa(r.Rank),
		r.Identifier,
		r.Title,
		r.Price,
		r.Link,
		r.Rating,
		r.ReviewCount,
		r.RecencySignal,
		string(r.Placement),
	}
}

// DetailRecord is the deeper view of a single product page.
type DetailRecord struct {
	Identifier    string      `json:"identifier"`
	Title         string      `json:"title"`
	Price         string      `json:"price"`
	Rating        string      `json:"rating"`
	ReviewCount   string      `json:"review_count"`
	Link          string      `json:"link"`
	CategoryRanks []string    `json:"category_ranks"`
	StockStatus   StockStatus `json:"stock_status"`
	RecencySignal string      `json:"recency_signal"`
}

func (r DetailRecord) Columns() []string {
	return []string{"identifier", "title", "price", "rating", "review_count", "link", "category_ranks", "stock_status", "recency_signal"}
}

func (r DetailRecord) Row() []string {
	ranks := NotAvailable
	if len(r.CategoryRanks) > 0 {
		ranks = strings.Join(r.CategoryRanks, " | ")
	}
	return []string{
		r.Identifier,
		r.Title,
		r.Price,
		r.Rating,
		r.ReviewCount,
		r.Link,
		ranks,
		string(r.StockStatus),
		r.RecencySignal,
	}
}

// Listing is the outcome of one listing search.
type Listing struct {
	Records  []ListingRecord
	Warnings []string
	Pages    int
}

// RunSummary holds the overall result of a batch.
type RunSummary struct {
	StartTime   time.Time
	EndTime     time.Time
	Queries     int
	Succeeded   int
	Failed      int
	RecordCount int
	Results     []Record
}
