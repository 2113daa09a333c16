package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Sink receives events in emission order.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// StreamSink writes events as newline-delimited JSON, flushing after each one.
type StreamSink struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
}

// NewStreamSink wraps w.
func NewStreamSink(w io.Writer) *StreamSink {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &StreamSink{buf: buf, enc: enc}
}

// Emit writes e and flushes it.
func (s *StreamSink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(e); err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", e.Type, err)
	}
	return nil
}

// RedisSink mirrors events onto a Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to addr. Events are appended to stream, which is
// trimmed to roughly maxLen entries when maxLen is positive.
func NewRedisSink(addr, stream string, maxLen int64) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Emit appends e to the stream.
func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":  string(e.Type),
			"event": bytes.TrimSpace(payload.Bytes()),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// MultiSink fans each event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
