package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/Sternrassler/fount-client/internal/config"
	"github.com/Sternrassler/fount-client/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cast"
)

const testToken = "cli-token"

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file="}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func setToken(t *testing.T, token string) {
	t.Helper()
	t.Setenv(config.EnvAPIKey, token)
	if token == "" {
		os.Unsetenv(config.EnvAPIKey)
	}
}

// decodeIDs parses the JSON output and returns the record ids.
func decodeIDs(t *testing.T, out string) []int {
	t.Helper()
	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("Output is not a JSON array: %v\n%s", err, out)
	}
	ids := make([]int, len(records))
	for i, record := range records {
		ids[i] = cast.ToInt(record["id"])
	}
	return ids
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if out != "fount dev\n" {
		t.Errorf("Expected %q, got %q", "fount dev\n", out)
	}
}

func TestQueryCommand_JSON(t *testing.T) {
	mock := testutil.NewMockFount(testToken)
	defer mock.Close()
	mock.SeedBrands("brands", 25)
	setToken(t, testToken)

	out, err := run(t, "--base-url", mock.URL(), "query", "brands", "--per-page", "10")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	ids := decodeIDs(t, out)
	if len(ids) != 25 {
		t.Fatalf("Expected 25 records, got %d", len(ids))
	}
	if ids[0] != 1 || ids[24] != 25 {
		t.Errorf("Expected ids 1..25 in order, got %v", ids)
	}
	if got := mock.RequestCount(); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestQueryCommand_Item(t *testing.T) {
	mock := testutil.NewMockFount(testToken)
	defer mock.Close()
	mock.SeedBrands("brands", 5)
	setToken(t, testToken)

	out, err := run(t, "--base-url", mock.URL(), "query", "brands", "4")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if diff := cmp.Diff([]int{4}, decodeIDs(t, out)); diff != "" {
		t.Errorf("Record ids mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryCommand_CSV(t *testing.T) {
	mock := testutil.NewMockFount(testToken)
	defer mock.Close()
	mock.SetRecords("brandscape-data", []map[string]any{
		{"id": 1, "brand_id": 7, "brand_name": "Swatch", "brand": map[string]any{"id": 7, "name": "Swatch"}},
		{"id": 2, "brand_id": 8, "brand_name": "Omega", "brand": map[string]any{"id": 8, "name": "Omega"}},
	})
	setToken(t, testToken)

	out, err := run(t, "--base-url", mock.URL(), "query", "brandscape-data", "-f", "brands=7,8", "-o", "csv")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if want := "id,brand_id,brand_name,global_brand_id,global_brand_name"; lines[0] != want {
		t.Errorf("Expected header %q, got %q", want, lines[0])
	}

	requests := mock.Requests()
	if len(requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(requests))
	}
	if got := requests[0].Query.Get("filter[brands]"); got != "7,8" {
		t.Errorf("Expected filter[brands]=7,8, got %q", got)
	}
	if got := requests[0].Query.Get("include"); got != "study,brand,category,audience" {
		t.Errorf("Unexpected include %q", got)
	}
}

func TestQueryCommand_Errors(t *testing.T) {
	mock := testutil.NewMockFount(testToken)
	defer mock.Close()
	mock.SeedBrands("brands", 5)

	tests := []struct {
		name   string
		token  string
		args   []string
		errMsg string
	}{
		{name: "unknown endpoint", token: testToken, args: []string{"query", "characters"}, errMsg: "unknown endpoint"},
		{name: "bad filter", token: testToken, args: []string{"query", "brands", "-f", "country"}, errMsg: "invalid filter"},
		{name: "bad output", token: testToken, args: []string{"query", "brands", "-o", "xml"}, errMsg: "unknown output format"},
		{name: "bad policy", token: testToken, args: []string{"query", "brands", "--on-errors", "ignore"}, errMsg: "unknown error policy"},
		{name: "bad time", token: testToken, args: []string{"query", "brands", "--updated-since", "yesterday"}, errMsg: "--updated-since"},
		{name: "missing token", token: "", args: []string{"query", "brands"}, errMsg: "api key is required"},
		{name: "brandscape without filters", token: testToken, args: []string{"query", "brandscape-data"}, errMsg: "requires one of the filter combinations"},
		{name: "no endpoint", token: testToken, args: []string{"query"}, errMsg: "accepts between 1 and 2 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setToken(t, tt.token)
			_, err := run(t, append([]string{"--base-url", mock.URL()}, tt.args...)...)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestParseFilters(t *testing.T) {
	filters, err := parseFilters([]string{"country_code=CH", "brands=1,2,3", " year_number =2024"})
	if err != nil {
		t.Fatalf("parseFilters failed: %v", err)
	}
	want := map[string]any{
		"country_code": "CH",
		"brands":       []string{"1", "2", "3"},
		"year_number":  "2024",
	}
	if diff := cmp.Diff(want, filters); diff != "" {
		t.Errorf("Filters mismatch (-want +got):\n%s", diff)
	}

	filters, err = parseFilters(nil)
	if err != nil {
		t.Fatalf("parseFilters failed: %v", err)
	}
	if filters != nil {
		t.Errorf("Expected nil filters, got %v", filters)
	}

	if _, err := parseFilters([]string{"=CH"}); err == nil {
		t.Error("Expected error for a filter without a name")
	}
}
