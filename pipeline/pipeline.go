// Package pipeline runs query batches and delivers their events and records.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

var (
	// ErrExporterClosed is returned when Process is called after shutdown.
	ErrExporterClosed = errors.New("exporter: closed")
	// ErrExporterCloseTimeout is returned when pending records do not drain in time.
	ErrExporterCloseTimeout = errors.New("exporter: close timed out")
)

var drainTimeout = 30 * time.Second

// Exporter batches records in the background and hands them to a RecordWriter.
type Exporter struct {
	writer    RecordWriter
	recordCh  chan models.Record
	batchSize int

	wg sync.WaitGroup

	seen   map[string]struct{}
	seenMu sync.Mutex

	metrics *exportMetrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewExporter builds an exporter. batchSize defaults to 64.
func NewExporter(writer RecordWriter, batchSize int) *Exporter {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Exporter{
		writer:    writer,
		recordCh:  make(chan models.Record, 512),
		batchSize: batchSize,
		seen:      make(map[string]struct{}),
		metrics:   newExportMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches worker goroutines. A single worker keeps rows in arrival order.
func (e *Exporter) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Process enqueues records for writing.
func (e *Exporter) Process(records ...models.Record) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := e.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrExporterClosed
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if err := e.enqueue(rec); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting records and waits for pending ones to be written.
func (e *Exporter) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.signalShutdown()
	e.closeOnce.Do(func() {
		close(e.recordCh)
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		return ErrExporterCloseTimeout
	}
	return e.Err()
}

// Err returns the first error encountered while writing.
func (e *Exporter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Snapshot returns a copy of the internal counters.
func (e *Exporter) Snapshot() map[string]interface{} {
	return e.metrics.snapshot()
}

// StartMetricsReporting logs progress every interval until Close.
func (e *Exporter) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snap := e.Snapshot()
				rejected := snap["rejected_records"].(map[string]int)
				slog.Info("export progress",
					slog.Int64("written", snap["written_records"].(int64)),
					slog.Int("rejected_kinds", len(rejected)),
				)
			case <-e.shutdown:
				return
			}
		}
	}()
}

func (e *Exporter) worker() {
	defer e.wg.Done()

	batch := make([]models.Record, 0, e.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.writer.Write(batch); err != nil {
			return err
		}
		e.metrics.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for rec := range e.recordCh {
		if !e.accept(rec) {
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= e.batchSize {
			if err := flush(); err != nil {
				e.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		e.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// accept drops malformed rows and rows identical to one already written.
func (e *Exporter) accept(rec models.Record) bool {
	row := rec.Row()
	if len(row) == 0 || len(row) != len(rec.Columns()) {
		e.metrics.addRejected("invalid_record")
		return false
	}

	key := strings.Join(row, "\x1f")
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	if _, ok := e.seen[key]; ok {
		e.metrics.addRejected("duplicate_record")
		return false
	}
	e.seen[key] = struct{}{}
	return true
}

func (e *Exporter) enqueue(rec models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrExporterClosed
		}
	}()

	select {
	case <-e.shutdown:
		return ErrExporterClosed
	case e.recordCh <- rec:
		return nil
	}
}

func (e *Exporter) setErr(err error) {
	if err == nil {
		return
	}

	e.mu.Lock()
	if e.err != nil {
		e.mu.Unlock()
		return
	}
	e.err = err
	e.closed = true
	e.mu.Unlock()

	e.signalShutdown()
	e.closeOnce.Do(func() {
		close(e.recordCh)
	})
}

func (e *Exporter) state() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed, e.err
}

func (e *Exporter) signalShutdown() {
	e.shutdownOnce.Do(func() {
		close(e.shutdown)
	})
}

type exportMetrics struct {
	mu       sync.Mutex
	written  int64
	rejected map[string]int
}

func newExportMetrics() *exportMetrics {
	return &exportMetrics{
		rejected: make(map[string]int),
	}
}

func (m *exportMetrics) addWritten(n int) {
	m.mu.Lock()
	m.written += int64(n)
	m.mu.Unlock()
}

func (m *exportMetrics) addRejected(kind string) {
	m.mu.Lock()
	m.rejected[kind]++
	m.mu.Unlock()
}

func (m *exportMetrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	rejected := make(map[string]int, len(m.rejected))
	for k, v := range m.rejected {
		rejected[k] = v
	}

	return map[string]interface{}{
		"written_records":  m.written,
		"rejected_records": rejected,
	}
}
