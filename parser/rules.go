package parser

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// Strategy is one way of reading a field. Empty Selector means the scope
// itself, empty Attr means its text.
type Strategy struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
	Contains string `yaml:"contains"`
	Pattern  string `yaml:"pattern"`
	Trim     string `yaml:"trim"`
	Validate string `yaml:"validate"`
	Template string `yaml:"template"`
	Resolve  bool   `yaml:"resolve"`

	re *regexp.Regexp
}

// FieldRule is the ordered fallback chain for one output field.
type FieldRule struct {
	Required   bool       `yaml:"required"`
	Strategies []Strategy `yaml:"strategies"`
}

// ListingRules drive extraction of search result pages.
type ListingRules struct {
	Container     string     `yaml:"container"`
	Identifier    FieldRule  `yaml:"identifier"`
	Title         FieldRule  `yaml:"title"`
	Price         FieldRule  `yaml:"price"`
	Link          FieldRule  `yaml:"link"`
	Rating        FieldRule  `yaml:"rating"`
	ReviewCount   FieldRule  `yaml:"review_count"`
	RecencySignal FieldRule  `yaml:"recency_signal"`
	Sponsored     []Strategy `yaml:"sponsored"`
}

// RankSource is one place category ranks may be listed.
type RankSource struct {
	Container string `yaml:"container"`
	Item      string `yaml:"item"`
	Contains  string `yaml:"contains"`
	Text      string `yaml:"text"`
}

// RankRules locate best seller ranks. Sources are tried in order and the
// first one producing any rank wins.
type RankRules struct {
	Pattern string       `yaml:"pattern"`
	Sources []RankSource `yaml:"sources"`

	re *regexp.Regexp
}

// StockRules map availability text to a stock status.
type StockRules struct {
	Text       FieldRule `yaml:"text"`
	InStock    []string  `yaml:"in_stock"`
	OutOfStock []string  `yaml:"out_of_stock"`
}

// DetailRules drive extraction of a single product page.
type DetailRules struct {
	LinkTemplate  string     `yaml:"link_template"`
	Title         FieldRule  `yaml:"title"`
	Price         FieldRule  `yaml:"price"`
	Rating        FieldRule  `yaml:"rating"`
	ReviewCount   FieldRule  `yaml:"review_count"`
	RecencySignal FieldRule  `yaml:"recency_signal"`
	Ranks         RankRules  `yaml:"ranks"`
	Stock         StockRules `yaml:"stock"`
}

// Markers recognise anti-automation challenge pages.
type Markers struct {
	Title     []string `yaml:"title"`
	Body      []string `yaml:"body"`
	Selectors []string `yaml:"selectors"`
}

// Match reports whether doc looks like a challenge page.
func (m Markers) Match(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	for _, marker := range m.Title {
		if strings.Contains(title, strings.ToLower(marker)) {
			return true
		}
	}
	if len(m.Body) > 0 {
		body := strings.ToLower(doc.Find("body").Text())
		for _, marker := range m.Body {
			if strings.Contains(body, strings.ToLower(marker)) {
				return true
			}
		}
	}
	for _, selector := range m.Selectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

// RuleSet is everything a marketplace knows about its markup.
type RuleSet struct {
	Name     string       `yaml:"name"`
	NextPage []string     `yaml:"next_page"`
	Blocked  Markers      `yaml:"blocked"`
	Listing  ListingRules `yaml:"listing"`
	Detail   DetailRules  `yaml:"detail"`
}

const defaultRankPattern = `#([\d,]+) in ([^(#]+)`

// LoadRules decodes and compiles a YAML rule set.
func LoadRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, fmt.Errorf("rules %q: %w", rs.Name, err)
	}
	return &rs, nil
}

// LoadRulesFile reads a rule set from path.
func LoadRulesFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return LoadRules(data)
}

func (rs *RuleSet) compile() error {
	if strings.TrimSpace(rs.Listing.Container) == "" {
		return errors.New("listing container selector is required")
	}

	var errs []error
	fields := map[string]*FieldRule{
		"listing.identifier":     &rs.Listing.Identifier,
		"listing.title":          &rs.Listing.Title,
		"listing.price":          &rs.Listing.Price,
		"listing.link":           &rs.Listing.Link,
		"listing.rating":         &rs.Listing.Rating,
		"listing.review_count":   &rs.Listing.ReviewCount,
		"listing.recency_signal": &rs.Listing.RecencySignal,
		"detail.title":           &rs.Detail.Title,
		"detail.price":           &rs.Detail.Price,
		"detail.rating":          &rs.Detail.Rating,
		"detail.review_count":    &rs.Detail.ReviewCount,
		"detail.recency_signal":  &rs.Detail.RecencySignal,
		"detail.stock.text":      &rs.Detail.Stock.Text,
	}
	for name, rule := range fields {
		if err := compileStrategies(rule.Strategies); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if err := compileStrategies(rs.Listing.Sponsored); err != nil {
		errs = append(errs, fmt.Errorf("listing.sponsored: %w", err))
	}

	pattern := rs.Detail.Ranks.Pattern
	if pattern == "" {
		pattern = defaultRankPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		errs = append(errs, fmt.Errorf("detail.ranks.pattern: %w", err))
	} else if re.NumSubexp() < 2 {
		errs = append(errs, errors.New("detail.ranks.pattern: needs rank and category groups"))
	} else {
		rs.Detail.Ranks.re = re
	}

	return errors.Join(errs...)
}

func compileStrategies(strategies []Strategy) error {
	for i := range strategies {
		st := &strategies[i]
		if st.Validate != "" {
			if _, ok := validators[st.Validate]; !ok {
				return fmt.Errorf("strategy %d: unknown validator %q", i, st.Validate)
			}
		}
		if st.Pattern == "" {
			continue
		}
		re, err := regexp.Compile(st.Pattern)
		if err != nil {
			return fmt.Errorf("strategy %d: %w", i, err)
		}
		st.re = re
	}
	return nil
}
