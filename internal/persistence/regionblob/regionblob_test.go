package regionblob

import (
	"testing"

	"terrastream.ai/internal/sim/terrain/region"
)

func TestEncodeDecodePreservesContent(t *testing.T) {
	dim := region.Dimension{ID: "overworld", Seed: 1337, Params: region.DefaultParams()}
	r, err := region.Generate(dim, region.Coord{X: 3, Y: -2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Encode(dim.ID, r)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	gotDim, got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotDim != dim.ID {
		t.Fatalf("dimension=%q", gotDim)
	}
	if !r.Equal(got) {
		t.Fatalf("decoded region differs from the original")
	}

	h, err := PeekHeader(b)
	if err != nil {
		t.Fatalf("PeekHeader: %v", err)
	}
	if h.X != 3 || h.Y != -2 || h.Placements != len(r.Placements) || h.Biome != string(r.Biome) {
		t.Fatalf("unexpected header %+v", h)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("not zstd")); err == nil {
		t.Fatalf("expected an error for garbage input")
	}
}
