package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"terrastream.ai/internal/sim/ecs"
	"terrastream.ai/internal/sim/failure"
	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/mesh"
	"terrastream.ai/internal/sim/terrain/region"
)

type fakeSource struct {
	dim region.Dimension

	mu       sync.Mutex
	calls    map[region.Coord]int
	failNext map[region.Coord]error
	gate     chan struct{}
}

func newFakeSource() *fakeSource {
	p := region.DefaultParams()
	p.Resolution = 8
	return &fakeSource{
		dim:      region.Dimension{ID: region.DefaultDimension, Seed: 1337, Params: p},
		calls:    map[region.Coord]int{},
		failNext: map[region.Coord]error{},
	}
}

func (f *fakeSource) GetOrCreate(ctx context.Context, dimID string, c region.Coord) (*region.Region, error) {
	f.mu.Lock()
	f.calls[c]++
	err := f.failNext[c]
	delete(f.failNext, c)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return region.Generate(f.dim, c)
}

func (f *fakeSource) GroundHeight(ctx context.Context, dimID string, x, y float64) (float64, error) {
	r, err := f.GetOrCreate(ctx, dimID, region.CoordAt(x, y, f.dim.Params.RegionSize))
	if err != nil {
		return 0, err
	}
	return r.HeightAt(x, y), nil
}

func (f *fakeSource) Calls(c region.Coord) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[c]
}

type fakeBuilder struct {
	inner *mesh.Builder

	mu       sync.Mutex
	failNext int
	gate     chan struct{}
}

func (b *fakeBuilder) Build(ctx context.Context, r *region.Region) (*mesh.Result, error) {
	b.mu.Lock()
	fail := b.failNext > 0
	if fail {
		b.failNext--
	}
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return nil, errors.New("builder unavailable")
	}
	return b.inner.Build(ctx, r)
}

type recorder struct {
	events []Event
}

func (r *recorder) OnChunkEvent(e Event) { r.events = append(r.events, e) }

func (r *recorder) kindsFor(c region.Coord) []EventKind {
	var out []EventKind
	for _, e := range r.events {
		if e.Coord == c {
			out = append(out, e.Kind)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RenderRadius = 0
	cfg.NearRadius = 0
	cfg.KeepRadius = 1
	cfg.FadeIn = 0
	return cfg
}

func newTestStreamer(t *testing.T, cfg Config, src *fakeSource, b *fakeBuilder, world *ecs.Registry) *Streamer {
	t.Helper()
	s, err := New(cfg, src, b, world, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

var origin = mathx.Vec3{X: 50, Y: 50}
var east = mathx.Vec3{X: 1}

func tickUntil(t *testing.T, s *Streamer, pos, fwd mathx.Vec3, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s (stats %+v)", what, s.Stats())
		}
		s.Tick(pos, fwd, 10*time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

func TestStateSequenceUnderDelayedStages(t *testing.T) {
	src := newFakeSource()
	dataGate := make(chan struct{})
	meshGate := make(chan struct{})
	src.gate = dataGate
	b := &fakeBuilder{inner: mesh.NewBuilder(nil), gate: meshGate}
	s := newTestStreamer(t, testConfig(), src, b, nil)
	rec := &recorder{}
	s.AddSink(rec)
	defer s.Close()

	c := region.Coord{}
	s.Tick(origin, east, 0)
	for i := 0; i < 5; i++ {
		if got := s.State(c); got != PendingData {
			t.Fatalf("tick %d: state=%s want PENDING_DATA", i, got)
		}
		s.Tick(origin, east, 0)
	}

	close(dataGate)
	tickUntil(t, s, origin, east, "PENDING_MESH", func() bool { return s.State(c) != PendingData })
	for i := 0; i < 5; i++ {
		if got := s.State(c); got != PendingMesh {
			t.Fatalf("state=%s want PENDING_MESH while mesh is delayed", got)
		}
		s.Tick(origin, east, 0)
	}

	close(meshGate)
	tickUntil(t, s, origin, east, "LOADED", func() bool { return s.State(c) == Loaded })

	want := []EventKind{EventAdmitted, EventDataReady, EventLoaded}
	got := rec.kindsFor(c)
	if len(got) != len(want) {
		t.Fatalf("events=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events=%v want %v", got, want)
		}
	}
	if st := s.Stats(); st.InFlight != 0 || st.Loaded != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestUnloadDestroysEveryEntityOnce(t *testing.T) {
	src := newFakeSource()
	world := ecs.NewRegistry()
	destroyed := map[ecs.ID]int{}
	world.OnRelease = func(id ecs.ID, c ecs.Component) {
		if c.ComponentName() == "transform" {
			destroyed[id]++
		}
	}
	s := newTestStreamer(t, testConfig(), src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, world)
	defer s.Close()

	c := region.Coord{}
	tickUntil(t, s, origin, east, "LOADED", func() bool { return s.State(c) == Loaded })
	ids := s.Entities(c)
	if len(ids) == 0 {
		t.Fatalf("loaded chunk owns no entities")
	}

	far := mathx.Vec3{X: 1050, Y: 50}
	s.Tick(far, east, 0)
	if got := s.State(c); got != Unloaded {
		t.Fatalf("state=%s want UNLOADED", got)
	}
	for _, id := range ids {
		if destroyed[id] != 1 {
			t.Fatalf("entity %d destroyed %d times", id, destroyed[id])
		}
		if world.Alive(id) {
			t.Fatalf("entity %d still alive", id)
		}
	}
	if n := len(s.Nearby(origin, 1000)); n != 0 {
		t.Fatalf("spatial index still holds %d entities of the unloaded chunk", n)
	}
	if s.Entities(c) != nil {
		t.Fatalf("unloaded chunk still lists entities")
	}
}

func TestHiddenChunkStaysResident(t *testing.T) {
	src := newFakeSource()
	cfg := DefaultConfig()
	cfg.RenderRadius = 4
	cfg.NearRadius = 1
	cfg.KeepRadius = 6
	cfg.FOVDegrees = 60
	cfg.MaxInFlight = 64
	cfg.FadeIn = 0
	world := ecs.NewRegistry()
	s := newTestStreamer(t, cfg, src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, world)
	defer s.Close()

	ahead := region.Coord{X: 3}
	tickUntil(t, s, origin, east, "chunk ahead loaded", func() bool { return s.State(ahead) == Loaded })
	if !s.Visible(ahead) {
		t.Fatalf("chunk in view should be visible")
	}
	ids := s.Entities(ahead)

	west := mathx.Vec3{X: -1}
	s.Tick(origin, west, 0)
	if got := s.State(ahead); got != Loaded {
		t.Fatalf("state=%s want LOADED while behind the observer", got)
	}
	if s.Visible(ahead) {
		t.Fatalf("chunk behind the observer should be hidden")
	}
	for _, id := range ids {
		if !world.Alive(id) || world.Visible(id) {
			t.Fatalf("entity %d alive=%v visible=%v", id, world.Alive(id), world.Visible(id))
		}
	}

	s.Tick(origin, east, 0)
	if !s.Visible(ahead) {
		t.Fatalf("chunk should be visible again")
	}
	if n := src.Calls(ahead); n != 1 {
		t.Fatalf("region requested %d times, want 1", n)
	}
}

func TestFailuresRevertAndReadmit(t *testing.T) {
	src := newFakeSource()
	c := region.Coord{}
	src.failNext[c] = failure.Wrap(failure.Persistence, "get region", errors.New("disk gone"))
	b := &fakeBuilder{inner: mesh.NewBuilder(nil), failNext: 1}
	s := newTestStreamer(t, testConfig(), src, b, nil)
	rec := &recorder{}
	s.AddSink(rec)
	defer s.Close()

	tickUntil(t, s, origin, east, "LOADED after failures", func() bool { return s.State(c) == Loaded })

	var kinds []failure.Kind
	for _, e := range rec.events {
		if e.Kind == EventFailed {
			kinds = append(kinds, e.Failure)
			if e.State != Unloaded {
				t.Fatalf("failed event reports state %s", e.State)
			}
		}
	}
	if len(kinds) != 2 || kinds[0] != failure.Generation || kinds[1] != failure.MeshBuild {
		t.Fatalf("failure kinds=%v want [GENERATION MESH_BUILD]", kinds)
	}
	if st := s.Stats(); st.Failures != 2 || st.InFlight != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestAdmissionNearestFirstUpToCap(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.gate = gate
	cfg := DefaultConfig()
	cfg.RenderRadius = 2
	cfg.NearRadius = 2
	cfg.KeepRadius = 3
	cfg.MaxInFlight = 2
	s := newTestStreamer(t, cfg, src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, nil)
	defer s.Close()
	defer close(gate)

	s.Tick(origin, east, 0)
	s.Tick(origin, east, 0)

	admitted := []region.Coord{{X: 0, Y: 0}, {X: -1, Y: 0}}
	for _, c := range admitted {
		if got := s.State(c); got != PendingData {
			t.Fatalf("%s state=%s want PENDING_DATA", c, got)
		}
	}
	for _, c := range []region.Coord{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 2, Y: 0}} {
		if got := s.State(c); got != Unloaded {
			t.Fatalf("%s state=%s want deferred", c, got)
		}
	}
	if st := s.Stats(); st.InFlight != 2 || st.Tracked != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestObserverOnBoundary(t *testing.T) {
	src := newFakeSource()
	gate := make(chan struct{})
	src.gate = gate
	s := newTestStreamer(t, testConfig(), src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, nil)
	defer s.Close()
	defer close(gate)

	s.Tick(mathx.Vec3{X: 100, Y: 0}, east, 0)
	if got := s.State(region.Coord{X: 1, Y: 0}); got != PendingData {
		t.Fatalf("(1,0) state=%s want PENDING_DATA", got)
	}
	if st := s.Stats(); st.Tracked != 1 {
		t.Fatalf("boundary observer tracked %d chunks, want 1", st.Tracked)
	}
}

func TestCloseUnloadsEverything(t *testing.T) {
	src := newFakeSource()
	world := ecs.NewRegistry()
	cfg := testConfig()
	cfg.FadeIn = 200 * time.Millisecond
	s := newTestStreamer(t, cfg, src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, world)

	tickUntil(t, s, origin, east, "LOADED", func() bool { return s.State(region.Coord{}) == Loaded })
	if world.Len() == 0 {
		t.Fatalf("expected live entities")
	}
	s.Close()
	if world.Len() != 0 {
		t.Fatalf("%d entities left after Close", world.Len())
	}
	s.Tick(origin, east, 0)
	if st := s.Stats(); st.Tracked != 0 {
		t.Fatalf("ticking after Close tracked %d chunks", st.Tracked)
	}
}

func TestRunFollowsFocus(t *testing.T) {
	src := newFakeSource()
	cfg := testConfig()
	cfg.TickRateHz = 200
	s := newTestStreamer(t, cfg, src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.SetFocus(mathx.Vec3{X: 250, Y: 250}, east)
	target := region.Coord{X: 2, Y: 2}
	deadline := time.Now().Add(5 * time.Second)
	for s.State(target) != Loaded {
		if time.Now().After(deadline) {
			t.Fatalf("chunk under focus never loaded (stats %+v)", s.Stats())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
}

func TestGroundHeightBypassesPipeline(t *testing.T) {
	src := newFakeSource()
	s := newTestStreamer(t, testConfig(), src, &fakeBuilder{inner: mesh.NewBuilder(nil)}, nil)
	defer s.Close()

	h, err := s.GroundHeight(context.Background(), 150, 150)
	if err != nil {
		t.Fatalf("GroundHeight: %v", err)
	}
	r, _ := region.Generate(src.dim, region.Coord{X: 1, Y: 1})
	if want := r.HeightAt(150, 150); h != want {
		t.Fatalf("height=%v want %v", h, want)
	}
	if st := s.Stats(); st.Tracked != 0 || st.Admitted != 0 {
		t.Fatalf("ground query touched the pipeline: %+v", st)
	}
}

func TestInSectorWidensForCloseChunks(t *testing.T) {
	half := 30.0 * 3.141592653589793 / 180
	// 45 degrees off-axis at distance 141 with half-size 50: 30 + 19.5 degrees.
	if !inSector(100, 100, 1, 0, 1, half, 50) {
		t.Fatalf("close chunk at 45 degrees should pass with angular radius")
	}
	if inSector(1000, 1000, 1, 0, 1, half, 50) {
		t.Fatalf("far chunk at 45 degrees should fail")
	}
	if !inSector(-5, 0, 0, 0, 0, half, 50) {
		t.Fatalf("zero forward disables the sector test")
	}
}
