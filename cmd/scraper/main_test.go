package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeEvents(t *testing.T, out string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid event line %q: %v", line, err)
		}
		events = append(events, e)
	}
	return events
}

func TestRunBatchLevelFailures(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		message string
	}{
		{name: "missing keywords", args: []string{"--platform", "amazon"}, message: "no keywords given"},
		{name: "blank keywords", args: []string{"--keywords", " , "}, message: "no keywords given"},
		{name: "unknown platform", args: []string{"--keywords", "mouse", "--platform", "ebay"}, message: `unknown platform "ebay"`},
		{name: "empty platform", args: []string{"--keywords", "mouse", "--platform", ""}, message: "platform is required"},
		{name: "unknown type", args: []string{"--keywords", "mouse", "--type", "reviews"}, message: "type must be"},
		{name: "non-positive limit", args: []string{"--keywords", "mouse", "--num_products", "0"}, message: "num products must be positive"},
		{name: "unknown flag", args: []string{"--keywords", "mouse", "--pages-per-second", "3"}, message: "flag provided but not defined"},
		{name: "malformed env", args: []string{"--keywords", "mouse"}, env: map[string]string{"SCRAPER_NUM_PRODUCTS": "many"}, message: "SCRAPER_NUM_PRODUCTS"},
		{name: "missing rules file", args: []string{"--keywords", "mouse", "--rules", "does-not-exist.yaml"}, message: "does-not-exist.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var stdout, stderr bytes.Buffer

			code := run(context.Background(), tt.args, &stdout, &stderr)
			if code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}

			events := decodeEvents(t, stdout.String())
			if len(events) != 1 {
				t.Fatalf("events = %v, want a single error event", events)
			}
			if events[0]["type"] != "error" {
				t.Fatalf("event type = %v, want error", events[0]["type"])
			}
			if _, ok := events[0]["keyword"]; ok {
				t.Fatalf("batch-level error carries a keyword: %v", events[0])
			}
			if msg, _ := events[0]["message"].(string); !strings.Contains(msg, tt.message) {
				t.Fatalf("message = %q, want it to contain %q", msg, tt.message)
			}
		})
	}
}

func TestRunInvalidIdentifiersNeverTouchTheNetwork(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"--keywords", "bad identifier,https://www.flipkart.com/p/itm1",
		"--platform", "Amazon",
		"--type", "product",
		"--timeout", "1s",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, stderr.String())
	}

	events := decodeEvents(t, stdout.String())
	wantTypes := []string{"progress", "error", "progress", "error", "complete"}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %v", events)
	}
	for i, want := range wantTypes {
		if events[i]["type"] != want {
			t.Fatalf("event %d type = %v, want %s", i, events[i]["type"], want)
		}
	}
	if events[1]["keyword"] != "bad identifier" {
		t.Fatalf("error keyword = %v", events[1]["keyword"])
	}
	if msg, _ := events[1]["message"].(string); !strings.Contains(msg, "invalid identifier") {
		t.Fatalf("error message = %q", msg)
	}
	if results, ok := events[4]["results"].([]any); !ok || len(results) != 0 {
		t.Fatalf("complete results = %v, want an empty array", events[4]["results"])
	}
	if !strings.Contains(stderr.String(), "Scrape complete") {
		t.Fatalf("summary missing from stderr: %s", stderr.String())
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-h"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if stdout.Len() != 0 {
		t.Fatalf("help wrote events: %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "-num_products") {
		t.Fatalf("usage missing flags: %s", stderr.String())
	}
}
