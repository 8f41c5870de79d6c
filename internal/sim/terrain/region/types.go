package region

import (
	"fmt"

	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/terrain/biome"
	"terrastream.ai/internal/sim/terrain/settlement"
)

const DefaultDimension = "overworld"

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string { return fmt.Sprintf("%d,%d", c.X, c.Y) }

// Dist2 is the squared distance in chunk units.
func (c Coord) Dist2(o Coord) int {
	dx, dy := c.X-o.X, c.Y-o.Y
	return dx*dx + dy*dy
}

// CoordAt resolves the region owning a world position. Boundaries belong to
// the region that starts there.
func CoordAt(x, y, size float64) Coord {
	return Coord{X: mathx.FloorDivF(x, size), Y: mathx.FloorDivF(y, size)}
}

type PlacementKind string

const (
	Prop      PlacementKind = "PROP"
	Structure PlacementKind = "STRUCTURE"
)

// Placement is declarative: the mesh builder resolves Model to geometry.
type Placement struct {
	Kind     PlacementKind `json:"kind"`
	Model    string        `json:"model"`
	Pos      mathx.Vec3    `json:"pos"`
	Scale    float64       `json:"scale"`
	Rotation float64       `json:"rotation"`
	SubSeed  uint64        `json:"sub_seed"`
}

// Region is the generated content of one chunk coordinate. Values returned by
// the generator are shared between callers and must be treated as read-only.
type Region struct {
	Coord      Coord           `json:"coord"`
	Biome      biome.Biome     `json:"biome"`
	Settlement settlement.Kind `json:"settlement,omitempty"`
	Size       float64         `json:"size"`
	Resolution int             `json:"resolution"`
	Heights    []float64       `json:"heights"` // (Resolution+1)^2, row-major by y
	Placements []Placement     `json:"placements"`
	Generated  bool            `json:"generated"`
}

type Params struct {
	RegionSize        float64 `json:"region_size" yaml:"region_size"`
	Resolution        int     `json:"resolution" yaml:"resolution"`
	WaterLevel        float64 `json:"water_level" yaml:"water_level"`
	HeightScale       float64 `json:"height_scale" yaml:"height_scale"`
	LandBias          float64 `json:"land_bias" yaml:"land_bias"`
	MountainThreshold float64 `json:"mountain_threshold" yaml:"mountain_threshold"`
	MountainHeight    float64 `json:"mountain_height" yaml:"mountain_height"`
	DetailHeight      float64 `json:"detail_height" yaml:"detail_height"`
	PropsPerRegion    int     `json:"props_per_region" yaml:"props_per_region"`
	SettlementCell    float64 `json:"settlement_cell" yaml:"settlement_cell"`
	SettlementRadius  float64 `json:"settlement_radius" yaml:"settlement_radius"`
}

func DefaultParams() Params {
	return Params{
		RegionSize:        100,
		Resolution:        32,
		WaterLevel:        0,
		HeightScale:       40,
		LandBias:          6,
		MountainThreshold: 0.3,
		MountainHeight:    80,
		DetailHeight:      1.5,
		PropsPerRegion:    24,
		SettlementCell:    settlement.DefaultCellSize,
		SettlementRadius:  settlement.DefaultRadius,
	}
}

func (p Params) Validate() error {
	if p.RegionSize <= 0 {
		return fmt.Errorf("region_size must be > 0 (got %v)", p.RegionSize)
	}
	if p.Resolution <= 0 || p.Resolution > 1024 {
		return fmt.Errorf("resolution must be in [1,1024] (got %d)", p.Resolution)
	}
	if p.MountainThreshold >= 1 {
		return fmt.Errorf("mountain_threshold must be < 1 (got %v)", p.MountainThreshold)
	}
	if p.PropsPerRegion < 0 {
		return fmt.Errorf("props_per_region must be >= 0 (got %d)", p.PropsPerRegion)
	}
	return nil
}

// Dimension is created once per ID and never changes afterwards.
type Dimension struct {
	ID     string `json:"id"`
	Seed   int64  `json:"seed"`
	Params Params `json:"params"`
}

func (d Dimension) planner() settlement.Planner {
	return settlement.Planner{Seed: d.Seed, CellSize: d.Params.SettlementCell, Radius: d.Params.SettlementRadius}
}
