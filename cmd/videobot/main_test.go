package main

import (
	"reflect"
	"testing"
)

func TestParseJobCapacity(t *testing.T) {
	got, err := parseJobCapacity("encode=2,analyze=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]int{"encode": 2, "analyze": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseJobCapacityEmpty(t *testing.T) {
	got, err := parseJobCapacity("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestParseJobCapacityRejectsMalformedPair(t *testing.T) {
	if _, err := parseJobCapacity("encode"); err == nil {
		t.Fatal("expected error for pair missing count")
	}
}

func TestParseJobCapacityRejectsNonIntegerCount(t *testing.T) {
	if _, err := parseJobCapacity("encode=two"); err == nil {
		t.Fatal("expected error for non-integer count")
	}
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty("a,,b,c", ',')
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
