package fingerprint

import (
	"errors"
	"testing"
	"time"
)

func TestDeterministic(t *testing.T) {
	digest := DigestBytes([]byte("user_id,gender\n1,f\n"))
	params := Params{"sample_size": 1000, "mode": "sample"}

	a, err := New(digest, "user_profile", params)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(digest, "user_profile", Params{"mode": "sample", "sample_size": 1000})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("same inputs must produce the same fingerprint regardless of map iteration order")
	}
}

func TestContentSensitivity(t *testing.T) {
	params := Params{"n": 10}
	d1 := DigestBytes([]byte("row1\nrow2\n"))
	d2 := DigestBytes([]byte("row1\nrow2x\n"))

	f1, _ := New(d1, "geo_heatmap", params)
	f2, _ := New(d2, "geo_heatmap", params)
	if f1 == f2 {
		t.Error("different content must produce different fingerprints")
	}

	f3, _ := New(d1, "geo_heatmap", Params{"n": 11})
	if f1 == f3 {
		t.Error("different params must produce different fingerprints")
	}

	f4, _ := New(d1, "time_features", params)
	if f1 == f4 {
		t.Error("different computation IDs must produce different fingerprints")
	}
}

func TestNumberNormalization(t *testing.T) {
	d := DigestBytes([]byte("x"))

	fInt, _ := New(d, "c", Params{"n": int32(5)})
	fInt64, _ := New(d, "c", Params{"n": int64(5)})
	fUint, _ := New(d, "c", Params{"n": uint(5)})
	if fInt != fInt64 || fInt != fUint {
		t.Error("integer widths must normalize to one representation")
	}

	fFloat, _ := New(d, "c", Params{"n": 5.0})
	if fInt == fFloat {
		t.Error("int and float are distinct kinds")
	}

	fA, _ := New(d, "c", Params{"x": 0.1 + 0.2})
	fB, _ := New(d, "c", Params{"x": 0.3})
	if fA != fB {
		t.Error("floats must be normalized to fixed precision")
	}
}

func TestOrderSensitivity(t *testing.T) {
	d := DigestBytes([]byte("x"))

	// Plain lists preserve order.
	f1, _ := New(d, "c", Params{"cols": []string{"a", "b"}})
	f2, _ := New(d, "c", Params{"cols": []string{"b", "a"}})
	if f1 == f2 {
		t.Error("sequence order must be part of the hash input by default")
	}

	// Unordered collections do not.
	u1, _ := New(d, "c", Params{"cols": Unordered{"a", "b"}})
	u2, _ := New(d, "c", Params{"cols": Unordered{"b", "a"}})
	if u1 != u2 {
		t.Error("Unordered collections must hash order-insensitively")
	}
}

func TestUnhashable(t *testing.T) {
	d := DigestBytes([]byte("x"))

	_, err := New(d, "c", Params{"ch": make(chan int)})
	var uh *UnhashableError
	if !errors.As(err, &uh) {
		t.Fatalf("expected UnhashableError, got %v", err)
	}
	if uh.Key != "ch" {
		t.Errorf("error key = %q, want %q", uh.Key, "ch")
	}

	// Nested values are checked too.
	_, err = New(d, "c", Params{"nested": Params{"bad": struct{}{}}})
	if !errors.As(err, &uh) {
		t.Fatalf("expected nested UnhashableError, got %v", err)
	}
}

func TestSupportedKinds(t *testing.T) {
	d := DigestBytes([]byte("x"))
	_, err := New(d, "c", Params{
		"none":   nil,
		"flag":   true,
		"count":  42,
		"ratio":  0.5,
		"name":   "geo",
		"since":  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"list":   []any{1, "two", 3.0},
		"floats": []float64{1.5, 2.5},
		"ints":   []int{1, 2},
		"nested": Params{"k": "v"},
	})
	if err != nil {
		t.Fatalf("all listed kinds must canonicalize: %v", err)
	}
}

func TestStreamingDigestMatchesOneShot(t *testing.T) {
	data := []byte("user_id,publish_time\n1,2024-01-01\n2,2024-01-02\n")

	h := NewHasher()
	h.Write(data[:10])
	h.Write(data[10:])

	if h.Sum() != DigestBytes(data) {
		t.Error("chunked digest must equal one-shot digest")
	}
	if h.BytesHashed() != int64(len(data)) {
		t.Errorf("BytesHashed = %d, want %d", h.BytesHashed(), len(data))
	}
}

func TestParseRoundTrip(t *testing.T) {
	f, _ := New(DigestBytes([]byte("x")), "c", Params{})
	got, err := Parse(f.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Error("Parse(String()) mismatch")
	}

	if _, err := Parse("zz"); err == nil {
		t.Error("bad hex must fail")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Error("short value must fail")
	}
}
