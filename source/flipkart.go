package source

import (
	_ "embed"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

//go:embed rules/flipkart.yaml
var flipkartRulesYAML []byte

var (
	flipkartRules     *parser.RuleSet
	flipkartRulesOnce sync.Once
)

// Flipkart targets flipkart.com.
type Flipkart struct {
	rules *parser.RuleSet
}

// NewFlipkart returns the Flipkart marketplace with its embedded rules.
func NewFlipkart() *Flipkart {
	flipkartRulesOnce.Do(func() {
		flipkartRules = mustLoadRules("flipkart", flipkartRulesYAML)
	})
	return &Flipkart{rules: flipkartRules}
}

func (f *Flipkart) Name() string { return "flipkart" }

func (f *Flipkart) ListingURL(query string) string {
	v := url.Values{}
	v.Set("q", strings.TrimSpace(query))
	v.Set("otracker", "search")
	v.Set("otracker1", "search")
	v.Set("marketplace", "FLIPKART")
	v.Set("as-show", "off")
	v.Set("as", "off")
	return "https://www.flipkart.com/search?" + v.Encode()
}

// ValidateIdentifier accepts product URLs on flipkart.com only.
func (f *Flipkart) ValidateIdentifier(input string) error {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "flipkart.com") {
		return invalid(input, "expected a flipkart.com product url")
	}
	u, err := url.Parse(withScheme(input))
	if err != nil || u.Host == "" {
		return invalid(input, "unparseable url")
	}
	return nil
}

func (f *Flipkart) DetailURL(input string) (string, error) {
	if err := f.ValidateIdentifier(input); err != nil {
		return "", err
	}
	return withScheme(strings.TrimSpace(input)), nil
}

// CanonicalID prefers the pid query parameter, then the item path segment.
func (f *Flipkart) CanonicalID(input string) string {
	u, err := url.Parse(withScheme(strings.TrimSpace(input)))
	if err != nil {
		return input
	}
	if pid := u.Query().Get("pid"); pid != "" {
		return pid
	}
	if base := path.Base(u.Path); strings.HasPrefix(base, "itm") {
		return base
	}
	return input
}

func (f *Flipkart) ItemsPerPage() int { return 24 }

func (f *Flipkart) Politeness() scraper.Window { return window(5, 8) }

func (f *Flipkart) Rules() *parser.RuleSet { return f.rules }

func withScheme(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}
