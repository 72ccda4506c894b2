package codec

import "testing"

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		if !ok {
			t.Fatalf("ByName(%q) not found", name)
		}
		if c.Name() != name {
			t.Errorf("Name() = %q, want %q", c.Name(), name)
		}
	}

	if _, ok := ByName("msgpack"); ok {
		t.Error("unknown codec should not resolve")
	}
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		ID     string             `json:"id"`
		Totals map[string]float64 `json:"totals"`
	}

	in := payload{ID: "user_profile", Totals: map[string]float64{"likes": 41.5}}

	for _, name := range []string{"json", "go-json"} {
		c, _ := ByName(name)
		b, err := c.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		var out payload
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		if out.ID != in.ID || out.Totals["likes"] != in.Totals["likes"] {
			t.Errorf("%s round trip mismatch: %+v", name, out)
		}
	}
}
