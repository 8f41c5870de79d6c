package region

import (
	"fmt"
	"math"

	"terrastream.ai/internal/sim/failure"
	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
)

const seedProps = 8009

// Generate builds the region for a coordinate. It is a pure function of
// (dim.Seed, dim.Params, c): callers may run it concurrently or redundantly.
func Generate(dim Dimension, c Coord) (*Region, error) {
	p := dim.Params
	if err := p.Validate(); err != nil {
		return nil, failure.Wrap(failure.Generation, "region "+c.String(), err)
	}

	size := p.RegionSize
	n := p.Resolution
	ox, oy := float64(c.X)*size, float64(c.Y)*size
	center := biome.Classify(ox+size/2, oy+size/2, dim.Seed)
	modifier := biome.HeightModifier(center.Biome)

	r := &Region{
		Coord:      c,
		Biome:      center.Biome,
		Size:       size,
		Resolution: n,
		Heights:    make([]float64, (n+1)*(n+1)),
	}
	step := size / float64(n)
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			h := terrainHeight(p, dim.Seed, modifier, ox+float64(i)*step, oy+float64(j)*step)
			if math.IsNaN(h) || math.IsInf(h, 0) {
				return nil, failure.Wrap(failure.Generation, "region "+c.String(), fmt.Errorf("non-finite height at node %d,%d", i, j))
			}
			r.Heights[j*(n+1)+i] = h
		}
	}

	// Sites are resolved per cell, so every region a site's disc reaches
	// agrees on it and keeps exactly the buildings it contains.
	planner := dim.planner()
	cx, cy := ox+size/2, oy+size/2
	nearest := math.Inf(1)
	for _, site := range planner.SitesOverlapping(ox, oy, ox+size, oy+size) {
		placed := 0
		for _, b := range planner.Layout(site) {
			if !r.Contains(b.X, b.Y) {
				continue
			}
			z := r.HeightAt(b.X, b.Y)
			if z < p.WaterLevel {
				continue
			}
			r.Placements = append(r.Placements, Placement{
				Kind:     Structure,
				Model:    b.Model,
				Pos:      mathx.Vec3{X: b.X, Y: b.Y, Z: z},
				Scale:    b.Scale,
				Rotation: b.Rotation,
				SubSeed:  b.SubSeed,
			})
			placed++
		}
		d := math.Hypot(site.CenterX-cx, site.CenterY-cy)
		if (placed > 0 || planner.Covers(site, cx, cy)) && d < nearest {
			nearest = d
			r.Settlement = site.Kind
		}
	}
	if len(r.Placements) == 0 {
		r.Placements = scatterProps(r, dim.Seed, p)
	}

	r.Generated = true
	return r, nil
}

func scatterProps(r *Region, seed int64, p Params) []Placement {
	count := int(math.Round(float64(p.PropsPerRegion) * biome.PropDensity(r.Biome)))
	if count <= 0 {
		return nil
	}
	rng := mathx.NewRand(mathx.Hash2(seed+seedProps, r.Coord.X, r.Coord.Y))
	ox, oy := r.Origin()
	trees := biome.TreeModels(r.Biome)
	rocks := biome.RockModels(r.Biome)
	treeShare := biome.TreeShare(r.Biome)

	out := make([]Placement, 0, count)
	for i := 0; i < count; i++ {
		x := ox + rng.Float64()*r.Size
		y := oy + rng.Float64()*r.Size
		var model string
		var scale float64
		if rng.Float64() < treeShare {
			model = trees[rng.Intn(len(trees))]
			scale = rng.Range(0.8, 1.4)
		} else {
			model = rocks[rng.Intn(len(rocks))]
			scale = rng.Range(0.5, 1.5)
		}
		rot := rng.Angle()
		sub := rng.Uint64()

		z := r.HeightAt(x, y)
		if z < p.WaterLevel {
			continue
		}
		out = append(out, Placement{
			Kind:     Prop,
			Model:    model,
			Pos:      mathx.Vec3{X: x, Y: y, Z: z},
			Scale:    scale,
			Rotation: rot,
			SubSeed:  sub,
		})
	}
	return out
}

// Clone returns a deep copy.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	out := *r
	out.Heights = append([]float64(nil), r.Heights...)
	out.Placements = append([]Placement(nil), r.Placements...)
	return &out
}

// Equal reports content equality.
func (r *Region) Equal(o *Region) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Coord != o.Coord || r.Biome != o.Biome || r.Settlement != o.Settlement ||
		r.Size != o.Size || r.Resolution != o.Resolution || r.Generated != o.Generated {
		return false
	}
	if len(r.Heights) != len(o.Heights) || len(r.Placements) != len(o.Placements) {
		return false
	}
	for i := range r.Heights {
		if r.Heights[i] != o.Heights[i] {
			return false
		}
	}
	for i := range r.Placements {
		if r.Placements[i] != o.Placements[i] {
			return false
		}
	}
	return true
}
