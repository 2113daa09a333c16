package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BlockList remembers hosts that recently served challenge pages.
type BlockList interface {
	IsBlocked(ctx context.Context, host string) bool
	Block(ctx context.Context, host string) error
}

// MemoryBlockList keeps cool-downs in process.
type MemoryBlockList struct {
	hosts *expirable.LRU[string, time.Time]
}

// NewMemoryBlockList creates a list holding up to size hosts for ttl each.
func NewMemoryBlockList(size int, ttl time.Duration) *MemoryBlockList {
	if size <= 0 {
		size = 128
	}
	return &MemoryBlockList{hosts: expirable.NewLRU[string, time.Time](size, nil, ttl)}
}

func (m *MemoryBlockList) IsBlocked(_ context.Context, host string) bool {
	_, ok := m.hosts.Get(host)
	return ok
}

func (m *MemoryBlockList) Block(_ context.Context, host string) error {
	m.hosts.Add(host, time.Now())
	return nil
}

// MemcacheBlockList shares cool-downs between processes through memcached.
type MemcacheBlockList struct {
	client *memcache.Client
	ttl    time.Duration
	prefix string
}

// NewMemcacheBlockList connects to the memcached server at addr.
func NewMemcacheBlockList(addr string, ttl time.Duration) *MemcacheBlockList {
	return &MemcacheBlockList{
		client: memcache.New(addr),
		ttl:    ttl,
		prefix: "scraper:cooldown:",
	}
}

func (m *MemcacheBlockList) IsBlocked(_ context.Context, host string) bool {
	_, err := m.client.Get(m.prefix + host)
	if err == nil {
		return true
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		slog.Debug("cooldown lookup failed", slog.String("host", host), slog.Any("error", err))
	}
	return false
}

func (m *MemcacheBlockList) Block(_ context.Context, host string) error {
	return m.client.Set(&memcache.Item{
		Key:        m.prefix + host,
		Value:      []byte(time.Now().UTC().Format(time.RFC3339)),
		Expiration: int32(m.ttl.Seconds()),
	})
}
