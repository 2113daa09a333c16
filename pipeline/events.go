package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/aluiziolira/go-scrape-market/models"
)

// EventType tags a line of the output stream.
type EventType string

const (
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry of the output stream. Only the fields that belong to
// its Type are serialized.
type Event struct {
	Type     EventType
	Current  int
	Total    int
	Keyword  string
	Data     any
	Warnings []string
	Message  string
	Results  []models.Record
}

// Progress announces that query current of total is starting.
func Progress(current, total int, keyword string) Event {
	return Event{Type: EventProgress, Current: current, Total: total, Keyword: keyword}
}

// Result carries the records of one successful query.
func Result(keyword string, data any, warnings []string) Event {
	return Event{Type: EventResult, Keyword: keyword, Data: data, Warnings: warnings}
}

// QueryError reports a failed query.
func QueryError(keyword string, err error) Event {
	return Event{Type: EventError, Keyword: keyword, Message: err.Error()}
}

// BatchError reports a failure that prevented any query from running.
func BatchError(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}

// Complete carries the aggregate of every successful query.
func Complete(results []models.Record) Event {
	return Event{Type: EventComplete, Results: results}
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Current int       `json:"current"`
			Total   int       `json:"total"`
			Keyword string    `json:"keyword"`
		}{e.Type, e.Current, e.Total, e.Keyword})
	case EventResult:
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Keyword  string    `json:"keyword"`
			Data     any       `json:"data"`
			Warnings []string  `json:"warnings,omitempty"`
		}{e.Type, e.Keyword, e.Data, e.Warnings})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
			Keyword string    `json:"keyword,omitempty"`
		}{e.Type, e.Message, e.Keyword})
	case EventComplete:
		results := e.Results
		if results == nil {
			results = []models.Record{}
		}
		return json.Marshal(struct {
			Type    EventType       `json:"type"`
			Results []models.Record `json:"results"`
		}{e.Type, results})
	}
	return nil, fmt.Errorf("unknown event type %q", e.Type)
}
