package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
		ok    bool
	}{
		{input: "listing", want: ModeListing, ok: true},
		{input: "rank", want: ModeListing, ok: true},
		{input: " Detail ", want: ModeDetail, ok: true},
		{input: "product", want: ModeDetail, ok: true},
		{input: "reviews"},
		{input: ""},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ParseMode(%q) = %q, want error", tt.input, got)
		}
	}
}

func TestNewQueries(t *testing.T) {
	got := NewQueries(" wireless mouse, ,keyboard,, usb hub ", ModeListing)
	want := []string{"wireless mouse", "keyboard", "usb hub"}
	if len(got) != len(want) {
		t.Fatalf("queries = %v, want %v", got, want)
	}
	for i, q := range got {
		if q.Text != want[i] || q.Mode != ModeListing {
			t.Fatalf("query %d = %+v, want %q in listing mode", i, q, want[i])
		}
	}
	if got := NewQueries("", ModeDetail); len(got) != 0 {
		t.Fatalf("empty list produced %v", got)
	}
}

func TestRowsLineUpWithColumns(t *testing.T) {
	records := []Record{
		ListingRecord{Rank: 1, Identifier: "B0CX23V2ZK", Placement: Organic},
		DetailRecord{Identifier: "B0CX23V2ZK", StockStatus: StockUnknown},
	}
	for _, rec := range records {
		if len(rec.Row()) != len(rec.Columns()) {
			t.Fatalf("%T: %d values for %d columns", rec, len(rec.Row()), len(rec.Columns()))
		}
	}
}

func TestDetailRecordRanks(t *testing.T) {
	rec := DetailRecord{CategoryRanks: []string{"#12 in Electronics", "#3 in Mice"}}
	if got := rec.Row()[6]; got != "#12 in Electronics | #3 in Mice" {
		t.Fatalf("ranks column = %q", got)
	}

	rec.CategoryRanks = []string{}
	if got := rec.Row()[6]; got != NotAvailable {
		t.Fatalf("empty ranks column = %q, want %q", got, NotAvailable)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"category_ranks":[]`) {
		t.Fatalf("empty ranks should serialize as an empty list: %s", data)
	}
}
