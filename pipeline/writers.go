package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-market/models"
)

// RecordWriter is an export destination.
type RecordWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// NewWriter opens the writer for format at filename. The dual format writes
// filename with .csv and .jsonl extensions side by side.
func NewWriter(filename, format string) (RecordWriter, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONWriter(filename)
	case "dual":
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		csvWriter, err := NewCSVWriter(base + ".csv")
		if err != nil {
			return nil, err
		}
		jsonWriter, err := NewJSONWriter(base + ".jsonl")
		if err != nil {
			csvWriter.Close()
			return nil, err
		}
		return MultiWriter{csvWriter, jsonWriter}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// CSVWriter writes records to CSV. The header comes from the first record.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	header []string
	mu     sync.Mutex
}

// NewCSVWriter creates filename and any missing parent directories.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: csv.NewWriter(f),
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, rec := range records {
		columns := rec.Columns()
		if cw.header == nil {
			if err := cw.writer.Write(columns); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
			cw.header = columns
		} else if !slices.Equal(cw.header, columns) {
			return fmt.Errorf("write csv record: columns %v do not match header %v", columns, cw.header)
		}
		if err := cw.writer.Write(rec.Row()); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates filename and any missing parent directories.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		if err := jw.encoder.Encode(rec); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// MultiWriter writes every batch to each of its writers in turn.
type MultiWriter []RecordWriter

func (mw MultiWriter) Write(records []models.Record) error {
	for _, w := range mw {
		if err := w.Write(records); err != nil {
			return err
		}
	}
	return nil
}

func (mw MultiWriter) Close() error {
	var errs []error
	for _, w := range mw {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mw MultiWriter) Validate() error {
	var errs []error
	for _, w := range mw {
		if err := w.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
