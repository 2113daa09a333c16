package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventShapes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "progress",
			event: Progress(1, 2, "wireless mouse"),
			want:  `{"type":"progress","current":1,"total":2,"keyword":"wireless mouse"}`,
		},
		{
			name:  "result without warnings",
			event: Result("mouse", []models.ListingRecord{}, nil),
			want:  `{"type":"result","keyword":"mouse","data":[]}`,
		},
		{
			name:  "result with warnings",
			event: Result("mouse", nil, []string{"item 3: title: required field missing"}),
			want:  `{"type":"result","keyword":"mouse","data":null,"warnings":["item 3: title: required field missing"]}`,
		},
		{
			name:  "query error",
			event: QueryError("bad identifier", errors.New("invalid identifier")),
			want:  `{"type":"error","message":"invalid identifier","keyword":"bad identifier"}`,
		},
		{
			name:  "batch error",
			event: BatchError(ErrNoQueries),
			want:  `{"type":"error","message":"no keywords given"}`,
		},
		{
			name:  "empty complete",
			event: Complete(nil),
			want:  `{"type":"complete","results":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestCompleteCarriesRecords(t *testing.T) {
	got, err := json.Marshal(Complete([]models.Record{detailRecord()}))
	require.NoError(t, err)

	var decoded struct {
		Type    string                `json:"type"`
		Results []models.DetailRecord `json:"results"`
	}
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, "complete", decoded.Type)
	assert.Equal(t, []models.DetailRecord{detailRecord()}, decoded.Results)
}

func TestUnknownEventType(t *testing.T) {
	_, err := json.Marshal(Event{Type: "bogus"})
	assert.Error(t, err)
}

func TestStreamSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)

	require.NoError(t, sink.Emit(context.Background(), Progress(1, 1, "mouse & pad")))
	require.NoError(t, sink.Emit(context.Background(), Complete(nil)))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"type":"progress","current":1,"total":1,"keyword":"mouse & pad"}`, lines[0])
	assert.Equal(t, `{"type":"complete","results":[]}`, lines[1])
}

type errSink struct{ err error }

func (s errSink) Emit(context.Context, Event) error { return s.err }

func TestMultiSinkReachesEverySink(t *testing.T) {
	capture := &captureSink{}
	multi := MultiSink{errSink{err: errors.New("redis down")}, capture}

	err := multi.Emit(context.Background(), Progress(1, 1, "mouse"))
	assert.EqualError(t, err, "redis down")
	assert.Len(t, capture.all(), 1)
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	sink := NewRedisSink("localhost:6379", "test:scraper:events", 100)
	defer sink.Close()

	if err := sink.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}
	sink.client.Del(ctx, "test:scraper:events")

	require.NoError(t, sink.Emit(ctx, Progress(1, 2, "wireless mouse")))

	entries, err := sink.client.XRange(ctx, "test:scraper:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "progress", entries[0].Values["type"])
	assert.JSONEq(t, `{"type":"progress","current":1,"total":2,"keyword":"wireless mouse"}`, entries[0].Values["event"].(string))
}
