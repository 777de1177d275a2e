package cas

import (
	"testing"
)

func TestCanonicalJSON_SimpleObject(t *testing.T) {
	input := map[string]interface{}{
		"z": 1,
		"a": 2,
		"m": 3,
	}

	result, err := CanonicalJSON(input)
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}

	expected := `{"a":2,"m":3,"z":1}`
	if string(result) != expected {
		t.Errorf("expected %s, got %s", expected, string(result))
	}
}

func TestCanonicalJSON_NestedObject(t *testing.T) {
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"b": 1,
			"a": 2,
		},
		"a": []interface{}{map[string]interface{}{"y": 1, "x": 2}},
	}

	result, err := CanonicalJSON(input)
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}

	expected := `{"a":[{"x":2,"y":1}],"z":{"a":2,"b":1}}`
	if string(result) != expected {
		t.Errorf("expected %s, got %s", expected, string(result))
	}
}

func TestCanonicalJSON_Primitives(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"number", 42, "42"},
		{"bool", true, "true"},
		{"null", nil, "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CanonicalJSON(tt.input)
			if err != nil {
				t.Fatalf("CanonicalJSON failed: %v", err)
			}
			if string(result) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, string(result))
			}
		})
	}
}

func TestSumJSON_KeyOrderInsensitive(t *testing.T) {
	a, err := SumJSON(map[string]interface{}{"x": 1, "y": []int{1, 2}})
	if err != nil {
		t.Fatalf("SumJSON: %v", err)
	}
	b, err := SumJSON(map[string]interface{}{"y": []int{1, 2}, "x": 1})
	if err != nil {
		t.Fatalf("SumJSON: %v", err)
	}
	if a != b {
		t.Errorf("digests differ for equal maps: %s vs %s", a.Hex(), b.Hex())
	}
}

func TestHasher_FieldBoundaries(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc"
	d1 := NewHasher().String("ab").String("c").Sum()
	d2 := NewHasher().String("a").String("bc").Sum()
	if d1 == d2 {
		t.Error("expected distinct digests for distinct field splits")
	}

	d3 := NewHasher().Int(1).Int(23).Sum()
	d4 := NewHasher().Int(12).Int(3).Sum()
	if d3 == d4 {
		t.Error("expected distinct digests for distinct integer sequences")
	}
}

func TestHasher_Deterministic(t *testing.T) {
	var previous Digest
	for i := 0; i < 5; i++ {
		d := NewHasher().String("node").Int(7).Bytes([]byte{1, 2, 3}).Sum()
		if i > 0 && d != previous {
			t.Fatalf("non-deterministic digest: %s vs %s", d.Hex(), previous.Hex())
		}
		previous = d
	}
	if previous.IsZero() {
		t.Error("digest should not be zero")
	}
	if len(previous.Hex()) != 2*DigestSize {
		t.Errorf("hex length = %d, want %d", len(previous.Hex()), 2*DigestSize)
	}
	if len(previous.Short()) != 8 {
		t.Errorf("short length = %d, want 8", len(previous.Short()))
	}
}

func TestSum_MatchesHasherOfRawBytes(t *testing.T) {
	if Sum([]byte("abc")) == Sum([]byte("abd")) {
		t.Error("different inputs produced equal digests")
	}
}
