package biome

import "testing"

func TestClassifyDeterministic(t *testing.T) {
	for i := 0; i < 300; i++ {
		x := float64(i*97) - 12000
		y := float64(i*-53) + 4000
		a := Classify(x, y, 1337)
		b := Classify(x, y, 1337)
		if a != b {
			t.Fatalf("classify(%v,%v) not stable: %+v vs %+v", x, y, a, b)
		}
	}
}

func TestDecisionTree(t *testing.T) {
	cases := []struct {
		name string
		in   Sample
		want Biome
	}{
		{"deep water", Sample{Continentalness: -0.5, Temperature: 0.9}, Ocean},
		{"shoreline", Sample{Continentalness: -0.1}, Coast},
		{"hot dry", Sample{Continentalness: 0.4, Temperature: 0.5, Humidity: -0.5}, Desert},
		{"hot dry eroded", Sample{Continentalness: 0.4, Temperature: 0.5, Humidity: -0.5, Erosion: 0.8}, Volcanic},
		{"hot mid", Sample{Continentalness: 0.4, Temperature: 0.5, Humidity: 0}, Savanna},
		{"hot wet", Sample{Continentalness: 0.4, Temperature: 0.5, Humidity: 0.6}, Jungle},
		{"temperate dry", Sample{Continentalness: 0.4, Humidity: -0.5}, Plains},
		{"temperate mid", Sample{Continentalness: 0.4}, Forest},
		{"temperate wet", Sample{Continentalness: 0.4, Humidity: 0.6}, Swamp},
		{"cold dry", Sample{Continentalness: 0.4, Temperature: -0.6, Humidity: -0.3}, Tundra},
		{"cold wet", Sample{Continentalness: 0.4, Temperature: -0.6, Humidity: 0.3}, Taiga},
	}
	for _, c := range cases {
		if got := decide(c.in); got != c.want {
			t.Fatalf("%s: got %s want %s", c.name, got, c.want)
		}
	}
}

func TestChannelsInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		s := Classify(float64(i)*311, float64(i)*-173, 42)
		for _, v := range []float64{s.Temperature, s.Humidity, s.Erosion, s.Continentalness} {
			if v < -1 || v > 1 {
				t.Fatalf("channel out of range: %+v", s)
			}
		}
	}
}

func TestModelsNeverEmpty(t *testing.T) {
	for _, b := range All {
		if len(TreeModels(b)) == 0 || len(RockModels(b)) == 0 {
			t.Fatalf("%s has no models", b)
		}
		if HeightModifier(b) <= 0 {
			t.Fatalf("%s height modifier must be positive", b)
		}
	}
	if HeightModifier(Ocean) != 0.2 || HeightModifier(Jungle) != 1.2 {
		t.Fatalf("unexpected reference modifiers")
	}
}
