package jsonrepair

import (
	"encoding/json"
	"testing"
)

func TestStripFenceRemovesJSONFence(t *testing.T) {
	in := "```json\n{\"a\":1}\n```"
	got := StripFence(in)
	if got != `{"a":1}` {
		t.Fatalf("StripFence = %q", got)
	}
}

func TestStripFenceNoOpWithoutFence(t *testing.T) {
	in := `{"a":1}`
	if got := StripFence(in); got != in {
		t.Fatalf("StripFence = %q, want unchanged", got)
	}
}

func TestRepairClosesUnterminatedObject(t *testing.T) {
	in := `{"clean_script":"hello`
	repaired := Repair(in)
	var out map[string]any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v (%q)", err, repaired)
	}
}

func TestRepairClosesNestedArray(t *testing.T) {
	in := `{"concepts":["a","b"`
	repaired := Repair(in)
	var out map[string]any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v (%q)", err, repaired)
	}
}

func TestRepairIgnoresBracketsInsideStrings(t *testing.T) {
	in := `{"clean_script":"a { weird [ string"`
	repaired := Repair(in)
	var out map[string]any
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		t.Fatalf("repaired JSON still invalid: %v (%q)", err, repaired)
	}
}

func TestRepairLeavesValidJSONAlone(t *testing.T) {
	in := `{"a":1}`
	if got := Repair(in); got != in {
		t.Fatalf("Repair modified valid JSON: %q", got)
	}
}
