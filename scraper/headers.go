package scraper

import (
	"math/rand/v2"
	"net/http"
)

// HeaderSource produces the header set for one request.
type HeaderSource interface {
	Headers() http.Header
}

// HeaderPool draws browser-like headers at random for every request.
type HeaderPool struct {
	UserAgents []string
	Languages  []string
	Referers   []string
}

// DefaultHeaderPool returns a small pool of desktop browser fingerprints.
func DefaultHeaderPool() *HeaderPool {
	return &HeaderPool{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.51",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Languages: []string{
			"en-US,en;q=0.9",
			"en-IN,en;q=0.9,hi;q=0.7",
			"en-GB,en;q=0.8",
		},
		Referers: []string{
			"https://www.google.com/",
			"https://www.bing.com/",
			"https://duckduckgo.com/",
		},
	}
}

func (p *HeaderPool) Headers() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Upgrade-Insecure-Requests", "1")
	if ua := pick(p.UserAgents); ua != "" {
		h.Set("User-Agent", ua)
	}
	if lang := pick(p.Languages); lang != "" {
		h.Set("Accept-Language", lang)
	}
	if ref := pick(p.Referers); ref != "" {
		h.Set("Referer", ref)
	}
	return h
}

func pick(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[rand.IntN(len(values))]
}
