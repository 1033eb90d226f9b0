package embedding

import (
	"errors"
	"math"
	"testing"
)

func TestPackUnpack_PreservesValues(t *testing.T) {
	in := []float64{0, 1.5, -2.25, math.MaxFloat64, math.SmallestNonzeroFloat64}
	out, err := Unpack(Pack(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestPack_Layout(t *testing.T) {
	buf := Pack([]float64{1})
	if len(buf) != 8 {
		t.Fatalf("len = %d, want 8", len(buf))
	}
	// 1.0 is 0x3FF0000000000000; little-endian puts 0x3F last.
	if buf[7] != 0x3F || buf[6] != 0xF0 {
		t.Errorf("unexpected encoding % x", buf)
	}
}

func TestUnpack_RejectsTruncatedBlob(t *testing.T) {
	_, err := Unpack(make([]byte, 12))
	if !errors.Is(err, ErrCorruptEmbedding) {
		t.Errorf("err = %v, want ErrCorruptEmbedding", err)
	}
}
