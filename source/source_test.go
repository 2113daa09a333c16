package source

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"amazon", "Flipkart", " amazon "} {
		m, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, m.Rules(), name)
	}

	_, err := Lookup("ebay")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPlatform))
	assert.Contains(t, err.Error(), "amazon, flipkart")
	assert.Equal(t, []string{"amazon", "flipkart"}, Names())
}

func TestAmazonValidateIdentifier(t *testing.T) {
	amazon := NewAmazon()
	tests := []struct {
		input string
		valid bool
	}{
		{input: "B0CX23V2ZK", valid: true},
		{input: "  B0CX23V2ZK ", valid: true},
		{input: "https://www.amazon.in/dp/B0CX23V2ZK", valid: true},
		{input: "amazon.in/Logitech-M331/dp/B0CX23V2ZK?th=1", valid: true},
		{input: "b0cx23v2zk"},
		{input: "B0CX23V2Z"},
		{input: "bad identifier"},
		{input: "https://www.flipkart.com/p/itm123"},
		{input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := amazon.ValidateIdentifier(tt.input)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}
}

func TestAmazonURLs(t *testing.T) {
	amazon := NewAmazon()
	assert.Equal(t, "https://www.amazon.in/s?k=wireless+mouse", amazon.ListingURL(" wireless mouse "))

	detail, err := amazon.DetailURL("B0CX23V2ZK")
	require.NoError(t, err)
	assert.Equal(t, "https://www.amazon.in/dp/B0CX23V2ZK", detail)

	detail, err = amazon.DetailURL("amazon.in/dp/B0CX23V2ZK")
	require.NoError(t, err)
	assert.Equal(t, "https://amazon.in/dp/B0CX23V2ZK", detail)

	_, err = amazon.DetailURL("bad identifier")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	assert.Equal(t, "B0CX23V2ZK", amazon.CanonicalID("https://www.amazon.in/Logitech/dp/B0CX23V2ZK/ref=sr_1_1"))
	assert.Equal(t, "B0CX23V2ZK", amazon.CanonicalID("https://www.amazon.in/gp/product/B0CX23V2ZK"))
	assert.Equal(t, "https://www.amazon.in/deals", amazon.CanonicalID("https://www.amazon.in/deals"))
	assert.Equal(t, 16, amazon.ItemsPerPage())
}

func TestFlipkartValidateIdentifier(t *testing.T) {
	flipkart := NewFlipkart()
	assert.NoError(t, flipkart.ValidateIdentifier("https://www.flipkart.com/logitech-m331/p/itm4b3f?pid=ACCFZ9"))
	assert.NoError(t, flipkart.ValidateIdentifier("www.flipkart.com/logitech-m331/p/itm4b3f"))
	assert.ErrorIs(t, flipkart.ValidateIdentifier("ACCFZ9"), ErrInvalidIdentifier)
	assert.ErrorIs(t, flipkart.ValidateIdentifier("https://www.amazon.in/dp/B0CX23V2ZK"), ErrInvalidIdentifier)
}

func TestFlipkartURLs(t *testing.T) {
	flipkart := NewFlipkart()

	listing, err := url.Parse(flipkart.ListingURL("wireless mouse"))
	require.NoError(t, err)
	assert.Equal(t, "www.flipkart.com", listing.Host)
	assert.Equal(t, "/search", listing.Path)
	q := listing.Query()
	assert.Equal(t, "wireless mouse", q.Get("q"))
	assert.Equal(t, "search", q.Get("otracker"))
	assert.Equal(t, "FLIPKART", q.Get("marketplace"))
	assert.Equal(t, "off", q.Get("as-show"))

	detail, err := flipkart.DetailURL("www.flipkart.com/logitech-m331/p/itm4b3f")
	require.NoError(t, err)
	assert.Equal(t, "https://www.flipkart.com/logitech-m331/p/itm4b3f", detail)

	assert.Equal(t, "ACCFZ9", flipkart.CanonicalID("https://www.flipkart.com/logitech-m331/p/itm4b3f?pid=ACCFZ9"))
	assert.Equal(t, "itm4b3f", flipkart.CanonicalID("https://www.flipkart.com/logitech-m331/p/itm4b3f"))
	assert.Equal(t, 24, flipkart.ItemsPerPage())
}

func TestPoliteness(t *testing.T) {
	amazon := NewAmazon().Politeness()
	assert.Equal(t, 2*time.Second, amazon.Min)
	assert.Equal(t, 5*time.Second, amazon.Max)

	flipkart := NewFlipkart().Politeness()
	assert.Equal(t, 5*time.Second, flipkart.Min)
	assert.Equal(t, 8*time.Second, flipkart.Max)
}
