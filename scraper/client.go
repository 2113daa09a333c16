package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Client fetches pages through a Fetcher with retries and host cool-down.
type Client struct {
	fetcher Fetcher
	retry   *RetryPolicy
	blocks  BlockList
}

// NewClient wires a fetcher to a retry policy. blocks may be nil.
func NewClient(fetcher Fetcher, retry *RetryPolicy, blocks BlockList) *Client {
	return &Client{fetcher: fetcher, retry: retry, blocks: blocks}
}

// Fetch retrieves rawURL, retrying transient and blocked outcomes.
func (c *Client) Fetch(ctx context.Context, rawURL string) Outcome {
	host := hostOf(rawURL)
	if c.blocks != nil && host != "" && c.blocks.IsBlocked(ctx, host) {
		return Outcome{
			Kind:     Permanent,
			URL:      rawURL,
			Err:      fmt.Errorf("%w: %s", ErrCoolingDown, host),
			Attempts: 1,
		}
	}

	out := c.retry.Do(ctx, func(ctx context.Context) Outcome {
		return c.fetcher.Fetch(ctx, rawURL)
	})

	if out.Kind == Blocked && c.blocks != nil && host != "" {
		if err := c.blocks.Block(ctx, host); err != nil {
			slog.Warn("record cooldown", slog.String("host", host), slog.Any("error", err))
		} else {
			slog.Warn("host keeps serving challenges, cooling down", slog.String("host", host))
		}
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
