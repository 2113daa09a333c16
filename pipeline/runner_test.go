package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *captureSink) types() []EventType {
	var out []EventType
	for _, e := range s.all() {
		out = append(out, e.Type)
	}
	return out
}

type stubSource struct {
	listings map[string]models.Listing
	details  map[string]models.DetailRecord
	errs     map[string]error
	delay    func() time.Duration
	panicOn  string
}

func (s *stubSource) wait() {
	if s.delay != nil {
		time.Sleep(s.delay())
	}
}

func (s *stubSource) SearchListing(_ context.Context, query string, limit int) (models.Listing, error) {
	s.wait()
	if query == s.panicOn {
		panic("selector engine exploded")
	}
	if err, ok := s.errs[query]; ok {
		return models.Listing{}, err
	}
	listing := s.listings[query]
	if len(listing.Records) > limit {
		listing.Records = listing.Records[:limit]
	}
	return listing, nil
}

func (s *stubSource) FetchDetail(_ context.Context, input string) (models.DetailRecord, error) {
	s.wait()
	if err, ok := s.errs[input]; ok {
		return models.DetailRecord{}, err
	}
	rec, ok := s.details[input]
	if !ok {
		return models.DetailRecord{}, fmt.Errorf("fetch %q: not found", input)
	}
	return rec, nil
}

var errInvalidIdentifier = errors.New("invalid identifier")

func TestRunDetailBatchEventSequence(t *testing.T) {
	record := detailRecord()
	src := &stubSource{
		details: map[string]models.DetailRecord{"wireless mouse": record},
		errs: map[string]error{
			"bad identifier": fmt.Errorf("%w %q: expected a 10 character ASIN or an amazon.in url", errInvalidIdentifier, "bad identifier"),
		},
	}
	sink := &captureSink{}

	summary, err := NewRunner(src, sink, 30).Run(context.Background(), models.NewQueries("wireless mouse,bad identifier", models.ModeDetail))
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 5)
	assert.Equal(t, Progress(1, 2, "wireless mouse"), events[0])
	assert.Equal(t, Result("wireless mouse", record, nil), events[1])
	assert.Equal(t, Progress(2, 2, "bad identifier"), events[2])
	assert.Equal(t, EventError, events[3].Type)
	assert.Equal(t, "bad identifier", events[3].Keyword)
	assert.Contains(t, events[3].Message, "invalid identifier")
	assert.Equal(t, Complete([]models.Record{record}), events[4])

	assert.Equal(t, 2, summary.Queries)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.RecordCount)
	assert.False(t, summary.EndTime.Before(summary.StartTime))
}

func TestRunListingBatch(t *testing.T) {
	src := &stubSource{
		listings: map[string]models.Listing{
			"mouse": {
				Records:  []models.ListingRecord{listingRecord(1), listingRecord(2), listingRecord(3)},
				Warnings: []string{"item 4: identifier: required field missing"},
			},
			"keyboard": {Records: []models.ListingRecord{listingRecord(1)}},
		},
	}
	sink := &captureSink{}

	summary, err := NewRunner(src, sink, 2).Run(context.Background(), models.NewQueries("mouse, keyboard", models.ModeListing))
	require.NoError(t, err)

	events := sink.all()
	require.Equal(t, []EventType{EventProgress, EventResult, EventProgress, EventResult, EventComplete}, sink.types())
	data, ok := events[1].Data.([]models.ListingRecord)
	require.True(t, ok)
	assert.Len(t, data, 2)
	assert.Equal(t, []string{"item 4: identifier: required field missing"}, events[1].Warnings)

	assert.Len(t, events[4].Results, 3)
	assert.Equal(t, "B000000001", events[4].Results[2].(models.ListingRecord).Identifier)
	assert.Equal(t, 3, summary.RecordCount)
}

func TestRunEmptyResultIsQueryError(t *testing.T) {
	src := &stubSource{listings: map[string]models.Listing{"nothing": {Records: []models.ListingRecord{}}}}
	sink := &captureSink{}

	summary, err := NewRunner(src, sink, 10).Run(context.Background(), models.NewQueries("nothing", models.ModeListing))
	require.NoError(t, err)

	events := sink.all()
	require.Equal(t, []EventType{EventProgress, EventError, EventComplete}, sink.types())
	assert.Contains(t, events[1].Message, ErrEmptyResult.Error())
	assert.Equal(t, "nothing", events[1].Keyword)
	assert.Empty(t, events[2].Results)
	assert.Equal(t, 1, summary.Failed)
}

func TestRunContinuesPastPanickingQuery(t *testing.T) {
	src := &stubSource{
		panicOn:  "boom",
		listings: map[string]models.Listing{"mouse": {Records: []models.ListingRecord{listingRecord(1)}}},
	}
	sink := &captureSink{}

	_, err := NewRunner(src, sink, 10).Run(context.Background(), models.NewQueries("boom,mouse", models.ModeListing))
	require.NoError(t, err)
	require.Equal(t, []EventType{EventProgress, EventError, EventProgress, EventResult, EventComplete}, sink.types())
	assert.Contains(t, sink.all()[1].Message, "panicked")
}

func TestRunNoQueries(t *testing.T) {
	sink := &captureSink{}

	_, err := NewRunner(&stubSource{}, sink, 10).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoQueries)
	assert.Equal(t, []Event{BatchError(ErrNoQueries)}, sink.all())
}

func TestRunReportsSinkFailure(t *testing.T) {
	src := &stubSource{listings: map[string]models.Listing{"mouse": {Records: []models.ListingRecord{listingRecord(1)}}}}

	_, err := NewRunner(src, errSink{err: errors.New("broken pipe")}, 10).Run(context.Background(), models.NewQueries("mouse", models.ModeListing))
	assert.ErrorContains(t, err, "broken pipe")
}

func TestRunParallelKeepsEventsPaired(t *testing.T) {
	const n = 8
	src := &stubSource{
		listings: map[string]models.Listing{},
		delay:    func() time.Duration { return time.Duration(rand.IntN(5)) * time.Millisecond },
	}
	var keywords []string
	for i := 0; i < n; i++ {
		kw := fmt.Sprintf("query-%d", i)
		keywords = append(keywords, kw)
		src.listings[kw] = models.Listing{Records: []models.ListingRecord{listingRecord(i + 1)}}
	}
	sink := &captureSink{}

	summary, err := NewRunner(src, sink, 5, WithWorkers(4)).Run(context.Background(), models.NewQueries(strings.Join(keywords, ","), models.ModeListing))
	require.NoError(t, err)

	events := sink.all()
	require.Len(t, events, 2*n+1)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
	assert.Len(t, events[len(events)-1].Results, n)

	progressAt := map[string]int{}
	for i, e := range events[:len(events)-1] {
		switch e.Type {
		case EventProgress:
			_, dup := progressAt[e.Keyword]
			assert.False(t, dup, "second progress for %s", e.Keyword)
			progressAt[e.Keyword] = i
			assert.Equal(t, n, e.Total)
		case EventResult:
			start, ok := progressAt[e.Keyword]
			require.True(t, ok, "result for %s before its progress", e.Keyword)
			assert.Less(t, start, i)
		default:
			t.Fatalf("unexpected %s event", e.Type)
		}
	}
	assert.Len(t, progressAt, n)
	assert.Equal(t, n, summary.Succeeded)
}

func TestRunExportsRecords(t *testing.T) {
	src := &stubSource{listings: map[string]models.Listing{
		"mouse": {Records: []models.ListingRecord{listingRecord(1), listingRecord(2)}},
	}}
	writer := &mockWriter{}
	exporter := NewExporter(writer, 0)
	exporter.Start(1)

	_, err := NewRunner(src, &captureSink{}, 10, WithExporter(exporter)).Run(context.Background(), models.NewQueries("mouse", models.ModeListing))
	require.NoError(t, err)
	require.NoError(t, exporter.Close())
	assert.Equal(t, 2, writer.totalWritten())
}
