// Package regionblob encodes regions for the persistent store.
//
// A blob is zstd(JSON header line + gob body). The header lets tooling peek
// at a blob without decoding the heightmap.
package regionblob

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
	"terrastream.ai/internal/sim/terrain/region"
	"terrastream.ai/internal/sim/terrain/settlement"
)

const Version = 1

type Header struct {
	Version    int    `json:"version"`
	Dimension  string `json:"dimension"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Biome      string `json:"biome"`
	Placements int    `json:"placements"`
}

type RegionV1 struct {
	Header Header

	Settlement string
	Size       float64
	Resolution int
	Heights    []float64
	Placements []PlacementV1
	Generated  bool
}

type PlacementV1 struct {
	Kind     string
	Model    string
	Pos      [3]float64
	Scale    float64
	Rotation float64
	SubSeed  uint64
}

// EncodeAll/DecodeAll are safe for concurrent use on shared coders.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func Encode(dim string, r *region.Region) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("encode nil region")
	}
	v := RegionV1{
		Header: Header{
			Version:    Version,
			Dimension:  dim,
			X:          r.Coord.X,
			Y:          r.Coord.Y,
			Biome:      string(r.Biome),
			Placements: len(r.Placements),
		},
		Settlement: string(r.Settlement),
		Size:       r.Size,
		Resolution: r.Resolution,
		Heights:    r.Heights,
		Generated:  r.Generated,
	}
	v.Placements = make([]PlacementV1, 0, len(r.Placements))
	for _, p := range r.Placements {
		v.Placements = append(v.Placements, PlacementV1{
			Kind:     string(p.Kind),
			Model:    p.Model,
			Pos:      [3]float64{p.Pos.X, p.Pos.Y, p.Pos.Z},
			Scale:    p.Scale,
			Rotation: p.Rotation,
			SubSeed:  p.SubSeed,
		})
	}

	var buf bytes.Buffer
	hb, err := json.Marshal(v.Header)
	if err != nil {
		return nil, err
	}
	buf.Write(hb)
	buf.WriteByte('\n')
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

func decompress(b []byte) (*bufio.Reader, error) {
	raw, err := decoder.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return bufio.NewReader(bytes.NewReader(raw)), nil
}

// PeekHeader decodes only the header line.
func PeekHeader(b []byte) (Header, error) {
	var h Header
	br, err := decompress(b)
	if err != nil {
		return h, err
	}
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

func Decode(b []byte) (string, *region.Region, error) {
	br, err := decompress(b)
	if err != nil {
		return "", nil, err
	}
	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return "", nil, fmt.Errorf("read header: %w", err)
	}
	var v RegionV1
	if err := gob.NewDecoder(br).Decode(&v); err != nil {
		return "", nil, fmt.Errorf("gob decode: %w", err)
	}
	if v.Header.Version != Version {
		return "", nil, fmt.Errorf("region blob version %d not supported", v.Header.Version)
	}
	if n := v.Resolution + 1; len(v.Heights) != n*n {
		return "", nil, fmt.Errorf("region blob heights length mismatch: got %d want %d", len(v.Heights), n*n)
	}
	r := &region.Region{
		Coord:      region.Coord{X: v.Header.X, Y: v.Header.Y},
		Biome:      biome.Biome(v.Header.Biome),
		Settlement: settlement.Kind(v.Settlement),
		Size:       v.Size,
		Resolution: v.Resolution,
		Heights:    v.Heights,
		Generated:  v.Generated,
	}
	if len(v.Placements) > 0 {
		r.Placements = make([]region.Placement, 0, len(v.Placements))
	}
	for _, p := range v.Placements {
		r.Placements = append(r.Placements, region.Placement{
			Kind:     region.PlacementKind(p.Kind),
			Model:    p.Model,
			Pos:      mathx.Vec3{X: p.Pos[0], Y: p.Pos[1], Z: p.Pos[2]},
			Scale:    p.Scale,
			Rotation: p.Rotation,
			SubSeed:  p.SubSeed,
		})
	}
	return v.Header.Dimension, r, nil
}
