package store

import "testing"

func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Fatal("empty string should map to NULL")
	}
	if got := nullIfEmpty("boom"); got != "boom" {
		t.Fatalf("non-empty string should pass through, got %v", got)
	}
}

func TestToJSON(t *testing.T) {
	if got := string(toJSON([]string{"a", "b"})); got != `["a","b"]` {
		t.Fatalf("toJSON slice = %s", got)
	}
	if got := string(toJSON(map[string]string{"k": "v"})); got != `{"k":"v"}` {
		t.Fatalf("toJSON map = %s", got)
	}
	var nilMap map[string]string
	if got := string(toJSON(nilMap)); got != "null" {
		t.Fatalf("toJSON nil map = %s", got)
	}
}
