package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/acorn-pups/dbinfra"
	"github.com/acorn-pups/dbinfra/pkg/schema"
)

func TestWrite_YAMLRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := write(&buf, schema.Default(), formatYAML); err != nil {
		t.Fatalf("write returned error: %v", err)
	}

	got, err := schema.ReadYAML(&buf)
	if err != nil {
		t.Fatalf("ReadYAML returned error: %v", err)
	}
	if len(got.Tables) != len(schema.Default().Tables) {
		t.Fatalf("expected %d tables, got %d", len(schema.Default().Tables), len(got.Tables))
	}
}

func TestWrite_KeysListsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	if err := write(&buf, schema.Default(), formatKeys); err != nil {
		t.Fatalf("write returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	records := 0
	for _, tbl := range schema.Default().Tables {
		records += len(tbl.Records)
	}
	if len(lines) != records+1 {
		t.Fatalf("expected header plus %d records, got %d lines:\n%s", records, len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "TABLE") {
		t.Fatalf("expected header line, got %q", lines[0])
	}
	if !strings.Contains(buf.String(), "LOG#{timestamp}#{log_id}") {
		t.Fatalf("expected device log sort key pattern, got:\n%s", buf.String())
	}
}

func TestWrite_RejectsUnknownFormat(t *testing.T) {
	err := write(&bytes.Buffer{}, schema.Default(), "toml")
	if !dbinfra.IsCode(err, dbinfra.ErrorCodeInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
