// Package settlement places cities, villages and outposts on a coarse grid.
//
// Each grid cell owns at most one candidate center, derived from a hash of
// (seed, cell). Centers keep a margin of Radius from the cell edges, so every
// position that can resolve to a settlement lies in the same cell as its
// center and the answer never depends on query order.
package settlement

import (
	"math"

	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
	"terrastream.ai/internal/sim/terrain/noise"
)

type Kind string

const (
	None    Kind = ""
	City    Kind = "CITY"
	Village Kind = "VILLAGE"
	Outpost Kind = "OUTPOST"
)

const (
	DefaultCellSize = 500.0
	DefaultRadius   = 100.0

	seedCivilization = 5003
	seedLayout       = 6007
)

var civilization = noise.Octaves{Count: 2, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.0008}

// Site is a resolved settlement center.
type Site struct {
	Kind    Kind    `json:"kind"`
	CellX   int     `json:"cell_x"`
	CellY   int     `json:"cell_y"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	Score   float64 `json:"score"`
}

// Building is one declarative structure placement produced by Layout.
type Building struct {
	Model    string
	X, Y     float64
	Scale    float64
	Rotation float64
	SubSeed  uint64
}

type Planner struct {
	Seed     int64
	CellSize float64
	Radius   float64
}

func NewPlanner(seed int64) Planner {
	return Planner{Seed: seed, CellSize: DefaultCellSize, Radius: DefaultRadius}
}

func (p Planner) normalized() Planner {
	if p.CellSize <= 0 {
		p.CellSize = DefaultCellSize
	}
	if p.Radius <= 0 {
		p.Radius = DefaultRadius
	}
	if p.Radius*2 > p.CellSize {
		p.Radius = p.CellSize / 2
	}
	return p
}

// Eligible reports whether a biome may host a settlement at all.
func Eligible(b biome.Biome) bool {
	switch b {
	case biome.Ocean, biome.Coast, biome.Tundra, biome.Taiga, biome.Volcanic:
		return false
	}
	return true
}

func (p Planner) cellRand(cx, cy int) *mathx.Rand {
	return mathx.NewRand(mathx.Hash2(p.Seed+seedLayout, cx, cy))
}

// Center returns the candidate center of a grid cell, whether or not a
// settlement ends up there.
func (p Planner) Center(cx, cy int) (float64, float64) {
	p = p.normalized()
	r := p.cellRand(cx, cy)
	return p.centerFrom(r, cx, cy)
}

func (p Planner) centerFrom(r *mathx.Rand, cx, cy int) (float64, float64) {
	span := p.CellSize - 2*p.Radius
	ox := p.Radius + r.Float64()*span
	oy := p.Radius + r.Float64()*span
	return float64(cx)*p.CellSize + ox, float64(cy)*p.CellSize + oy
}

// Plan resolves the settlement covering (x, y), if any.
func (p Planner) Plan(x, y float64, b biome.Biome) (Site, bool) {
	if !Eligible(b) {
		return Site{}, false
	}
	p = p.normalized()
	cx := mathx.FloorDivF(x, p.CellSize)
	cy := mathx.FloorDivF(y, p.CellSize)
	ccx, ccy := p.Center(cx, cy)
	if math.Hypot(x-ccx, y-ccy) > p.Radius {
		return Site{}, false
	}
	return p.siteAt(cx, cy, ccx, ccy, b)
}

// SiteInCell resolves the settlement of a grid cell, judged by the biome at
// its center. Every region overlapping the site sees the same answer.
func (p Planner) SiteInCell(cx, cy int) (Site, bool) {
	p = p.normalized()
	x, y := p.Center(cx, cy)
	return p.siteAt(cx, cy, x, y, biome.Classify(x, y, p.Seed).Biome)
}

// SitesOverlapping returns the sites whose disc reaches the rectangle
// [minX, maxX] x [minY, maxY], ordered by cell.
func (p Planner) SitesOverlapping(minX, minY, maxX, maxY float64) []Site {
	p = p.normalized()
	var out []Site
	for cx := mathx.FloorDivF(minX-p.Radius, p.CellSize); cx <= mathx.FloorDivF(maxX+p.Radius, p.CellSize); cx++ {
		for cy := mathx.FloorDivF(minY-p.Radius, p.CellSize); cy <= mathx.FloorDivF(maxY+p.Radius, p.CellSize); cy++ {
			x, y := p.Center(cx, cy)
			dx := math.Max(math.Max(minX-x, 0), x-maxX)
			dy := math.Max(math.Max(minY-y, 0), y-maxY)
			if math.Hypot(dx, dy) > p.Radius {
				continue
			}
			if site, ok := p.SiteInCell(cx, cy); ok {
				out = append(out, site)
			}
		}
	}
	return out
}

// Covers reports whether (x, y) lies within the site's radius.
func (p Planner) Covers(site Site, x, y float64) bool {
	p = p.normalized()
	return math.Hypot(x-site.CenterX, y-site.CenterY) <= p.Radius
}

func (p Planner) siteAt(cx, cy int, x, y float64, b biome.Biome) (Site, bool) {
	if !Eligible(b) {
		return Site{}, false
	}
	score := civilization.Sample(x, y, p.Seed+seedCivilization)
	kind := kindFor(score)
	if kind == None {
		return Site{}, false
	}
	return Site{Kind: kind, CellX: cx, CellY: cy, CenterX: x, CenterY: y, Score: score}, true
}

func kindFor(score float64) Kind {
	switch {
	case score > 0.6:
		return City
	case score > 0.3:
		return Village
	case score > 0.0:
		return Outpost
	default:
		return None
	}
}

// BuildingCount is the number of structures a settlement kind lays out.
func BuildingCount(k Kind) int {
	switch k {
	case City:
		return 30
	case Village:
		return 15
	case Outpost:
		return 5
	default:
		return 0
	}
}

func spread(k Kind) float64 {
	switch k {
	case City:
		return 90
	case Village:
		return 60
	default:
		return 30
	}
}

func models(k Kind) []string {
	switch k {
	case City:
		return []string{"house_large", "house_small", "hall", "tower", "market"}
	case Village:
		return []string{"house_small", "hut", "barn", "well"}
	default:
		return []string{"tent", "watchtower", "hut"}
	}
}

// Layout scatters the buildings of a site in polar offsets from its center.
// It continues the cell's sub-generator after the center draws, so the result
// depends only on (seed, cell, kind).
func (p Planner) Layout(site Site) []Building {
	n := BuildingCount(site.Kind)
	if n == 0 {
		return nil
	}
	p = p.normalized()
	r := p.cellRand(site.CellX, site.CellY)
	p.centerFrom(r, site.CellX, site.CellY)

	maxR := math.Min(spread(site.Kind), p.Radius)
	ms := models(site.Kind)
	out := make([]Building, 0, n)
	for i := 0; i < n; i++ {
		angle := r.Angle()
		// sqrt keeps density roughly uniform over the disc
		dist := 8 + math.Sqrt(r.Float64())*(maxR-8)
		out = append(out, Building{
			Model:    ms[r.Intn(len(ms))],
			X:        site.CenterX + math.Cos(angle)*dist,
			Y:        site.CenterY + math.Sin(angle)*dist,
			Scale:    r.Range(0.8, 1.2),
			Rotation: r.Angle(),
			SubSeed:  r.Uint64(),
		})
	}
	return out
}
