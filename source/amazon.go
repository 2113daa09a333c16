package source

import (
	_ "embed"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

//go:embed rules/amazon.yaml
var amazonRulesYAML []byte

var (
	amazonRules     *parser.RuleSet
	amazonRulesOnce sync.Once

	asinRe    = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	asinURLRe = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)
)

// Amazon targets amazon.in.
type Amazon struct {
	rules *parser.RuleSet
}

// NewAmazon returns the Amazon marketplace with its embedded rules.
func NewAmazon() *Amazon {
	amazonRulesOnce.Do(func() {
		amazonRules = mustLoadRules("amazon", amazonRulesYAML)
	})
	return &Amazon{rules: amazonRules}
}

func (a *Amazon) Name() string { return "amazon" }

func (a *Amazon) ListingURL(query string) string {
	return "https://www.amazon.in/s?k=" + url.QueryEscape(strings.TrimSpace(query))
}

// ValidateIdentifier accepts a bare ASIN or any amazon.in URL.
func (a *Amazon) ValidateIdentifier(input string) error {
	input = strings.TrimSpace(input)
	if asinRe.MatchString(input) {
		return nil
	}
	if strings.Contains(input, "amazon.in") {
		if _, err := url.Parse(input); err != nil {
			return invalid(input, "unparseable url")
		}
		return nil
	}
	return invalid(input, "expected a 10 character ASIN or an amazon.in url")
}

func (a *Amazon) DetailURL(input string) (string, error) {
	if err := a.ValidateIdentifier(input); err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if asinRe.MatchString(input) {
		return "https://www.amazon.in/dp/" + input, nil
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}
	return input, nil
}

// CanonicalID extracts the ASIN from a URL, or returns the input unchanged.
func (a *Amazon) CanonicalID(input string) string {
	input = strings.TrimSpace(input)
	if asinRe.MatchString(input) {
		return input
	}
	if m := asinURLRe.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return input
}

func (a *Amazon) ItemsPerPage() int { return 16 }

func (a *Amazon) Politeness() scraper.Window { return window(2, 5) }

func (a *Amazon) Rules() *parser.RuleSet { return a.rules }
