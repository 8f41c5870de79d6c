package stream

import (
	"fmt"
	"time"

	"terrastream.ai/internal/sim/terrain/region"
)

type Config struct {
	Dimension  string  `json:"dimension" yaml:"dimension"`
	RegionSize float64 `json:"region_size" yaml:"region_size"`

	// Radii are in chunk units. Chunks within NearRadius are always needed,
	// chunks within RenderRadius only when inside the view sector, and
	// loaded chunks beyond KeepRadius are unloaded.
	RenderRadius int `json:"render_radius" yaml:"render_radius"`
	KeepRadius   int `json:"keep_radius" yaml:"keep_radius"`
	NearRadius   int `json:"near_radius" yaml:"near_radius"`

	FOVDegrees float64 `json:"fov_degrees" yaml:"fov_degrees"`
	FOVSlack   float64 `json:"fov_slack" yaml:"fov_slack"`

	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight"`
	DataWorkers int `json:"data_workers" yaml:"data_workers"`
	MeshWorkers int `json:"mesh_workers" yaml:"mesh_workers"`

	TickRateHz      int           `json:"tick_rate_hz" yaml:"tick_rate_hz"`
	FadeIn          time.Duration `json:"fade_in" yaml:"fade_in"`
	SpatialCellSize float64       `json:"spatial_cell_size" yaml:"spatial_cell_size"`
}

func DefaultConfig() Config {
	return Config{
		Dimension:       region.DefaultDimension,
		RegionSize:      100,
		RenderRadius:    4,
		KeepRadius:      6,
		NearRadius:      2,
		FOVDegrees:      90,
		FOVSlack:        1.25,
		MaxInFlight:     8,
		DataWorkers:     4,
		MeshWorkers:     2,
		TickRateHz:      20,
		FadeIn:          400 * time.Millisecond,
		SpatialCellSize: 25,
	}
}

func (c Config) Validate() error {
	if c.RegionSize <= 0 {
		return fmt.Errorf("region_size must be > 0 (got %v)", c.RegionSize)
	}
	if c.NearRadius < 0 || c.RenderRadius < c.NearRadius {
		return fmt.Errorf("need 0 <= near_radius <= render_radius (got %d, %d)", c.NearRadius, c.RenderRadius)
	}
	if c.KeepRadius < c.RenderRadius {
		return fmt.Errorf("keep_radius must be >= render_radius (got %d < %d)", c.KeepRadius, c.RenderRadius)
	}
	if c.FOVDegrees <= 0 || c.FOVDegrees > 360 {
		return fmt.Errorf("fov_degrees must be in (0,360] (got %v)", c.FOVDegrees)
	}
	if c.FOVSlack < 1 {
		return fmt.Errorf("fov_slack must be >= 1 (got %v)", c.FOVSlack)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max_in_flight must be > 0 (got %d)", c.MaxInFlight)
	}
	if c.DataWorkers <= 0 || c.MeshWorkers <= 0 {
		return fmt.Errorf("worker counts must be > 0 (got data=%d mesh=%d)", c.DataWorkers, c.MeshWorkers)
	}
	if c.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0 (got %d)", c.TickRateHz)
	}
	if c.FadeIn < 0 {
		return fmt.Errorf("fade_in must be >= 0 (got %v)", c.FadeIn)
	}
	if c.SpatialCellSize <= 0 {
		return fmt.Errorf("spatial_cell_size must be > 0 (got %v)", c.SpatialCellSize)
	}
	return nil
}
