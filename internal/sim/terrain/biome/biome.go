// Package biome classifies world positions into environmental biomes.
package biome

import "terrastream.ai/internal/sim/terrain/noise"

type Biome string

const (
	Ocean    Biome = "OCEAN"
	Coast    Biome = "COAST"
	Desert   Biome = "DESERT"
	Savanna  Biome = "SAVANNA"
	Jungle   Biome = "JUNGLE"
	Plains   Biome = "PLAINS"
	Forest   Biome = "FOREST"
	Swamp    Biome = "SWAMP"
	Tundra   Biome = "TUNDRA"
	Taiga    Biome = "TAIGA"
	Volcanic Biome = "VOLCANIC"
)

// All lists every biome in a stable order.
var All = []Biome{Ocean, Coast, Desert, Savanna, Jungle, Plains, Forest, Swamp, Tundra, Taiga, Volcanic}

// Channel seed offsets. Each channel must stay independent of the others.
const (
	seedTemperature     = 1001
	seedHumidity        = 2003
	seedErosion         = 3007
	seedContinentalness = 4013
)

var (
	climate     = noise.Octaves{Count: 3, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.0007}
	erosion     = noise.Octaves{Count: 3, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.0015}
	continental = noise.Octaves{Count: 4, Persistence: 0.5, Lacunarity: 2.0, Scale: 0.0004}
)

const (
	hotAbove      = 0.3
	coldBelow     = -0.3
	wetAbove      = 0.25
	dryBelow      = -0.2
	oceanBelow    = -0.2
	coastBelow    = 0.0
	volcanicAbove = 0.55
)

type Sample struct {
	Biome           Biome   `json:"biome"`
	Temperature     float64 `json:"temperature"`
	Humidity        float64 `json:"humidity"`
	Erosion         float64 `json:"erosion"`
	Continentalness float64 `json:"continentalness"`
}

func Classify(x, y float64, seed int64) Sample {
	s := Sample{
		Temperature:     climate.Sample(x, y, seed+seedTemperature),
		Humidity:        climate.Sample(x, y, seed+seedHumidity),
		Erosion:         erosion.Sample(x, y, seed+seedErosion),
		Continentalness: continental.Sample(x, y, seed+seedContinentalness),
	}
	s.Biome = decide(s)
	return s
}

func decide(s Sample) Biome {
	switch {
	case s.Continentalness < oceanBelow:
		return Ocean
	case s.Continentalness < coastBelow:
		return Coast
	}

	switch {
	case s.Temperature > hotAbove:
		switch {
		case s.Humidity < dryBelow && s.Erosion > volcanicAbove:
			return Volcanic
		case s.Humidity < dryBelow:
			return Desert
		case s.Humidity > wetAbove:
			return Jungle
		default:
			return Savanna
		}
	case s.Temperature < coldBelow:
		if s.Humidity > 0 {
			return Taiga
		}
		return Tundra
	default:
		switch {
		case s.Humidity > wetAbove:
			return Swamp
		case s.Humidity > dryBelow:
			return Forest
		default:
			return Plains
		}
	}
}

// HeightModifier scales continent noise per biome.
func HeightModifier(b Biome) float64 {
	switch b {
	case Ocean:
		return 0.2
	case Coast:
		return 0.5
	case Desert:
		return 0.8
	case Savanna:
		return 0.9
	case Jungle:
		return 1.2
	case Plains:
		return 0.7
	case Forest:
		return 1.0
	case Swamp:
		return 0.4
	case Tundra:
		return 0.9
	case Taiga:
		return 1.1
	case Volcanic:
		return 1.5
	default:
		return 1.0
	}
}

// PropDensity is the multiplier applied to the per-region nature prop budget.
func PropDensity(b Biome) float64 {
	switch b {
	case Ocean:
		return 0
	case Coast, Tundra:
		return 0.3
	case Desert, Volcanic:
		return 0.2
	case Savanna, Plains:
		return 0.5
	case Swamp:
		return 0.8
	case Forest, Taiga:
		return 1.2
	case Jungle:
		return 1.5
	default:
		return 0.5
	}
}

// TreeShare is the probability that a nature prop is a tree rather than a rock.
func TreeShare(b Biome) float64 {
	switch b {
	case Desert, Volcanic, Tundra:
		return 0.1
	case Coast:
		return 0.4
	case Savanna, Plains:
		return 0.6
	case Forest, Taiga, Swamp:
		return 0.85
	case Jungle:
		return 0.95
	default:
		return 0.5
	}
}

// TreeModels lists the tree model selectors that suit a biome.
func TreeModels(b Biome) []string {
	switch b {
	case Taiga, Tundra:
		return []string{"tree_pine", "tree_spruce"}
	case Jungle:
		return []string{"tree_jungle", "tree_palm"}
	case Desert, Savanna, Coast:
		return []string{"tree_palm", "tree_acacia"}
	case Swamp:
		return []string{"tree_willow"}
	case Volcanic:
		return []string{"tree_dead"}
	default:
		return []string{"tree_oak", "tree_birch"}
	}
}

// RockModels lists the rock model selectors that suit a biome.
func RockModels(b Biome) []string {
	switch b {
	case Volcanic:
		return []string{"rock_basalt"}
	case Desert:
		return []string{"rock_sandstone", "rock_small"}
	default:
		return []string{"rock_small", "rock_large"}
	}
}

// Continentalness exposes the channel that separates ocean from land so the
// terrain height can follow the same coastlines the classifier sees.
func Continentalness(x, y float64, seed int64) float64 {
	return continental.Sample(x, y, seed+seedContinentalness)
}
