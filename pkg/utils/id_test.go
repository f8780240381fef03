package utils

import (
	"strings"
	"testing"
)

func TestGenerateRunID(t *testing.T) {
	id := GenerateRunID()
	if !strings.HasPrefix(id, "run-") {
		t.Fatalf("expected run- prefix, got %s", id)
	}
	if id == GenerateRunID() {
		t.Fatalf("expected distinct run IDs")
	}
}

func TestGenerateBatchID(t *testing.T) {
	if got := GenerateBatchID("run-x", 7); got != "run-x/batch-00007" {
		t.Fatalf("unexpected batch id %q", got)
	}
}

func TestGenerateExecutionID(t *testing.T) {
	id := GenerateExecutionID()
	if len(id) != 36 {
		t.Fatalf("expected uuid string, got %q", id)
	}
}
