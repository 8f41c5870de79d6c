package settlement

import (
	"math"
	"testing"

	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
)

func TestCenterStaysInsideCell(t *testing.T) {
	p := NewPlanner(1337)
	for cx := -20; cx <= 20; cx++ {
		for cy := -20; cy <= 20; cy++ {
			x, y := p.Center(cx, cy)
			if mathx.FloorDivF(x, p.CellSize) != cx || mathx.FloorDivF(y, p.CellSize) != cy {
				t.Fatalf("center of cell (%d,%d) at (%v,%v) escapes the cell", cx, cy, x, y)
			}
		}
	}
}

func TestCentersUniquePerCell(t *testing.T) {
	p := NewPlanner(42)
	seen := map[[2]float64][2]int{}
	for cx := -15; cx <= 15; cx++ {
		for cy := -15; cy <= 15; cy++ {
			x, y := p.Center(cx, cy)
			key := [2]float64{x, y}
			if prev, ok := seen[key]; ok {
				t.Fatalf("cells %v and (%d,%d) share a center", prev, cx, cy)
			}
			seen[key] = [2]int{cx, cy}
		}
	}
}

func TestPlanResolvesToOwnCellOnly(t *testing.T) {
	p := NewPlanner(7)
	found := 0
	for i := 0; i < 4000; i++ {
		x := float64(i%80)*61 - 2400
		y := float64(i/80)*59 - 1500
		site, ok := p.Plan(x, y, biome.Plains)
		if !ok {
			continue
		}
		found++
		if site.CellX != mathx.FloorDivF(x, p.CellSize) || site.CellY != mathx.FloorDivF(y, p.CellSize) {
			t.Fatalf("query (%v,%v) resolved to foreign cell %+v", x, y, site)
		}
		if math.Hypot(x-site.CenterX, y-site.CenterY) > p.Radius {
			t.Fatalf("query (%v,%v) outside radius of %+v", x, y, site)
		}
		again, _ := p.Plan(x, y, biome.Plains)
		if again != site {
			t.Fatalf("plan not stable: %+v vs %+v", site, again)
		}
	}
	if found == 0 {
		t.Fatalf("expected at least one settlement in the sampled area")
	}
}

func TestIneligibleBiomes(t *testing.T) {
	p := NewPlanner(7)
	for cx := -5; cx <= 5; cx++ {
		x, y := p.Center(cx, 0)
		for _, b := range []biome.Biome{biome.Ocean, biome.Coast, biome.Tundra, biome.Taiga, biome.Volcanic} {
			if _, ok := p.Plan(x, y, b); ok {
				t.Fatalf("%s must never host a settlement", b)
			}
		}
	}
}

func TestLayoutReproducible(t *testing.T) {
	p := NewPlanner(1337)
	for _, k := range []Kind{City, Village, Outpost} {
		x, y := p.Center(3, -2)
		site := Site{Kind: k, CellX: 3, CellY: -2, CenterX: x, CenterY: y}
		a := p.Layout(site)
		b := p.Layout(site)
		if len(a) != BuildingCount(k) {
			t.Fatalf("%s: got %d buildings want %d", k, len(a), BuildingCount(k))
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("%s building %d differs: %+v vs %+v", k, i, a[i], b[i])
			}
			if d := math.Hypot(a[i].X-x, a[i].Y-y); d > p.Radius {
				t.Fatalf("%s building %d too far from center: %v", k, i, d)
			}
		}
	}
	if n := len(p.Layout(Site{Kind: None})); n != 0 {
		t.Fatalf("None kind laid out %d buildings", n)
	}
}

func TestKindThresholds(t *testing.T) {
	cases := map[float64]Kind{0.9: City, 0.61: City, 0.45: Village, 0.1: Outpost, 0: None, -0.4: None}
	for score, want := range cases {
		if got := kindFor(score); got != want {
			t.Fatalf("score %v: got %q want %q", score, got, want)
		}
	}
}

func TestSiteInCellMatchesPlanAtCenter(t *testing.T) {
	p := NewPlanner(1337)
	found := 0
	for cx := -12; cx <= 12; cx++ {
		for cy := -12; cy <= 12; cy++ {
			x, y := p.Center(cx, cy)
			want, wantOK := p.Plan(x, y, biome.Classify(x, y, p.Seed).Biome)
			got, ok := p.SiteInCell(cx, cy)
			if ok != wantOK || got != want {
				t.Fatalf("cell (%d,%d): SiteInCell=%+v,%v Plan=%+v,%v", cx, cy, got, ok, want, wantOK)
			}
			if ok {
				found++
			}
		}
	}
	if found == 0 {
		t.Fatalf("no settlements in the sampled cells")
	}
}

func TestSitesOverlappingReachesDisc(t *testing.T) {
	p := NewPlanner(1337)
	checked := 0
	for cx := -12; cx <= 12 && checked < 20; cx++ {
		for cy := -12; cy <= 12 && checked < 20; cy++ {
			site, ok := p.SiteInCell(cx, cy)
			if !ok {
				continue
			}
			checked++
			// A small box just inside the disc edge, east of the center.
			ex := site.CenterX + p.Radius - 1
			if !containsSite(p.SitesOverlapping(ex, site.CenterY-5, ex+10, site.CenterY+5), site) {
				t.Fatalf("box at the disc edge misses %+v", site)
			}
			// The same box just outside the edge.
			ox := site.CenterX + p.Radius + 1
			if containsSite(p.SitesOverlapping(ox, site.CenterY-5, ox+10, site.CenterY+5), site) {
				t.Fatalf("box beyond the disc reaches %+v", site)
			}
		}
	}
	if checked == 0 {
		t.Fatalf("no settlements in the sampled cells")
	}
}

func containsSite(sites []Site, want Site) bool {
	for _, s := range sites {
		if s == want {
			return true
		}
	}
	return false
}
