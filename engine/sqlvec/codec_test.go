package sqlvec

import "testing"

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("value %d = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorCodec_Empty(t *testing.T) {
	if got := decodeVector(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
	if got := encodeVector(nil); len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}
