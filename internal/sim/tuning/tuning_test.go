package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeTuning(t, `
seed: 42
terrain:
  region_size: 64
  resolution: 16
stream:
  render_radius: 3
  fade_in: 250ms
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Seed != 42 || got.Terrain.Resolution != 16 || got.Stream.RenderRadius != 3 {
		t.Fatalf("file values not applied: %+v", got)
	}
	if got.Stream.RegionSize != 64 {
		t.Fatalf("stream region size %v not synced from terrain", got.Stream.RegionSize)
	}
	if got.Stream.FadeIn != 250*time.Millisecond {
		t.Fatalf("fade_in=%v", got.Stream.FadeIn)
	}
	def := Defaults()
	if got.Stream.KeepRadius != def.Stream.KeepRadius || got.Terrain.HeightScale != def.Terrain.HeightScale {
		t.Fatalf("unset fields lost their defaults: %+v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTuning(t, "seed: 42\n")
	t.Setenv("TERRASTREAM_SEED", "7")
	t.Setenv("TERRASTREAM_MAX_IN_FLIGHT", "3")
	t.Setenv("TERRASTREAM_FADE_IN", "1s")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Seed != 7 || got.Stream.MaxInFlight != 3 || got.Stream.FadeIn != time.Second {
		t.Fatalf("env overrides not applied: seed=%d inflight=%d fade=%v", got.Seed, got.Stream.MaxInFlight, got.Stream.FadeIn)
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("TERRASTREAM_RENDER_RADIUS", "wide")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestValidateRejectsInvertedRadii(t *testing.T) {
	path := writeTuning(t, "stream:\n  render_radius: 8\n  keep_radius: 4\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "keep_radius") {
		t.Fatalf("expected keep_radius error, got %v", err)
	}
}

func TestShippedTuningMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults:\n got %+v\nwant %+v", got, Defaults())
	}
}
