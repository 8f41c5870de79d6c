package region

import (
	"math"

	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
	"terrastream.ai/internal/sim/terrain/noise"
)

const (
	seedMountain = 7
	seedDetail   = 13
)

var (
	mountains = noise.Octaves{Count: 4, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.004}
	detail    = noise.Octaves{Count: 2, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.05}
)

// terrainHeight is the composite height function evaluated at every grid node.
func terrainHeight(p Params, seed int64, modifier, x, y float64) float64 {
	base := biome.Continentalness(x, y, seed)
	h := (base*p.HeightScale + p.LandBias) * modifier
	if base > p.MountainThreshold {
		t := (base - p.MountainThreshold) / (1 - p.MountainThreshold)
		h += mountains.Ridged(x, y, seed+seedMountain) * p.MountainHeight * t
	}
	h += detail.Sample(x, y, seed+seedDetail) * p.DetailHeight
	return h
}

func (r *Region) Origin() (float64, float64) {
	return float64(r.Coord.X) * r.Size, float64(r.Coord.Y) * r.Size
}

// Contains uses half-open bounds, matching CoordAt.
func (r *Region) Contains(x, y float64) bool {
	ox, oy := r.Origin()
	return x >= ox && x < ox+r.Size && y >= oy && y < oy+r.Size
}

// Node returns the height stored at grid node (i, j).
func (r *Region) Node(i, j int) float64 {
	return r.Heights[j*(r.Resolution+1)+i]
}

// HeightAt bilinearly samples the heightmap. Positions outside the region are
// clamped to its edge.
func (r *Region) HeightAt(x, y float64) float64 {
	if r.Resolution <= 0 || len(r.Heights) == 0 {
		return 0
	}
	ox, oy := r.Origin()
	n := float64(r.Resolution)
	u := mathx.Clamp((x-ox)/r.Size*n, 0, n)
	v := mathx.Clamp((y-oy)/r.Size*n, 0, n)

	i0 := int(math.Floor(u))
	j0 := int(math.Floor(v))
	if i0 >= r.Resolution {
		i0 = r.Resolution - 1
	}
	if j0 >= r.Resolution {
		j0 = r.Resolution - 1
	}
	fu := u - float64(i0)
	fv := v - float64(j0)

	h00 := r.Node(i0, j0)
	h10 := r.Node(i0+1, j0)
	h01 := r.Node(i0, j0+1)
	h11 := r.Node(i0+1, j0+1)
	return mathx.Lerp(mathx.Lerp(h00, h10, fu), mathx.Lerp(h01, h11, fu), fv)
}

// MinMax returns the lowest and highest node heights.
func (r *Region) MinMax() (float64, float64) {
	if len(r.Heights) == 0 {
		return 0, 0
	}
	lo, hi := r.Heights[0], r.Heights[0]
	for _, h := range r.Heights[1:] {
		lo = math.Min(lo, h)
		hi = math.Max(hi, h)
	}
	return lo, hi
}
