package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"terrastream.ai/internal/sim/stream"
	"terrastream.ai/internal/sim/terrain/region"
)

type Tuning struct {
	Seed int64 `yaml:"seed"`

	// RegionCacheMaxCost bounds the in-memory region tier, in heightmap nodes.
	RegionCacheMaxCost int64 `yaml:"region_cache_max_cost"`

	Terrain region.Params `yaml:"terrain"`
	Stream  stream.Config `yaml:"stream"`
}

// envOverrides are applied after the file. Unset variables leave the field
// nil.
type envOverrides struct {
	Seed         *int64         `env:"TERRASTREAM_SEED"`
	CacheMaxCost *int64         `env:"TERRASTREAM_REGION_CACHE_MAX_COST"`
	RegionSize   *float64       `env:"TERRASTREAM_REGION_SIZE"`
	Resolution   *int           `env:"TERRASTREAM_RESOLUTION"`
	Dimension    *string        `env:"TERRASTREAM_DIMENSION"`
	RenderRadius *int           `env:"TERRASTREAM_RENDER_RADIUS"`
	KeepRadius   *int           `env:"TERRASTREAM_KEEP_RADIUS"`
	MaxInFlight  *int           `env:"TERRASTREAM_MAX_IN_FLIGHT"`
	DataWorkers  *int           `env:"TERRASTREAM_DATA_WORKERS"`
	MeshWorkers  *int           `env:"TERRASTREAM_MESH_WORKERS"`
	TickRateHz   *int           `env:"TERRASTREAM_TICK_RATE_HZ"`
	FadeIn       *time.Duration `env:"TERRASTREAM_FADE_IN"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:               1337,
		RegionCacheMaxCost: 256 * 33 * 33,
		Terrain:            region.DefaultParams(),
		Stream:             stream.DefaultConfig(),
	}
}

// Load decodes path over Defaults, applies TERRASTREAM_* overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := t.ApplyEnv(); err != nil {
		return t, err
	}
	t.Stream.RegionSize = t.Terrain.RegionSize
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t *Tuning) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setInt64(&t.Seed, o.Seed)
	setInt64(&t.RegionCacheMaxCost, o.CacheMaxCost)
	if o.RegionSize != nil {
		t.Terrain.RegionSize = *o.RegionSize
	}
	setInt(&t.Terrain.Resolution, o.Resolution)
	if o.Dimension != nil {
		t.Stream.Dimension = *o.Dimension
	}
	setInt(&t.Stream.RenderRadius, o.RenderRadius)
	setInt(&t.Stream.KeepRadius, o.KeepRadius)
	setInt(&t.Stream.MaxInFlight, o.MaxInFlight)
	setInt(&t.Stream.DataWorkers, o.DataWorkers)
	setInt(&t.Stream.MeshWorkers, o.MeshWorkers)
	setInt(&t.Stream.TickRateHz, o.TickRateHz)
	if o.FadeIn != nil {
		t.Stream.FadeIn = *o.FadeIn
	}
	return nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func (t Tuning) Validate() error {
	var errs []error
	if err := t.Terrain.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("terrain: %w", err))
	}
	if err := t.Stream.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stream: %w", err))
	}
	if t.Stream.RegionSize != t.Terrain.RegionSize {
		errs = append(errs, fmt.Errorf("stream.region_size %v differs from terrain.region_size %v", t.Stream.RegionSize, t.Terrain.RegionSize))
	}
	if t.RegionCacheMaxCost < 0 {
		errs = append(errs, fmt.Errorf("region_cache_max_cost must be >= 0 (got %d)", t.RegionCacheMaxCost))
	}
	return errors.Join(errs...)
}
