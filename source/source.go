// Package source binds marketplace specific knowledge to the generic
// fetch, retry, paginate and extract machinery.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-market/parser"
	"github.com/aluiziolira/go-scrape-market/scraper"
)

var (
	// ErrInvalidIdentifier is returned when detail input fails validation.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnknownPlatform is returned by Lookup for unsupported names.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Marketplace is the capability set each supported site provides.
type Marketplace interface {
	Name() string
	ListingURL(query string) string
	DetailURL(input string) (string, error)
	ValidateIdentifier(input string) error
	CanonicalID(input string) string
	ItemsPerPage() int
	Politeness() scraper.Window
	Rules() *parser.RuleSet
}

var registry = map[string]func() Marketplace{
	"amazon":   func() Marketplace { return NewAmazon() },
	"flipkart": func() Marketplace { return NewFlipkart() },
}

// Lookup returns the marketplace registered under name.
func Lookup(name string) (Marketplace, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownPlatform, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered marketplaces.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustLoadRules(name string, data []byte) *parser.RuleSet {
	rs, err := parser.LoadRules(data)
	if err != nil {
		panic(fmt.Sprintf("embedded %s rules: %v", name, err))
	}
	return rs
}

func invalid(input, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidIdentifier, input, reason)
}

func window(minSeconds, maxSeconds int) scraper.Window {
	return scraper.Window{
		Min: time.Duration(minSeconds) * time.Second,
		Max: time.Duration(maxSeconds) * time.Second,
	}
}
