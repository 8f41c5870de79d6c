// Package stream decides, once per tick, which chunks around the observer are
// needed, drives the two-stage load pipeline for them and owns the entities
// instantiated for loaded chunks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"terrastream.ai/internal/sim/ecs"
	"terrastream.ai/internal/sim/failure"
	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/mesh"
	"terrastream.ai/internal/sim/spatial"
	"terrastream.ai/internal/sim/terrain/region"
	"terrastream.ai/internal/sim/workpool"
)

// RegionSource is the region generator as seen by the pipeline.
type RegionSource interface {
	GetOrCreate(ctx context.Context, dimID string, c region.Coord) (*region.Region, error)
	GroundHeight(ctx context.Context, dimID string, x, y float64) (float64, error)
}

type MeshBuilder interface {
	Build(ctx context.Context, r *region.Region) (*mesh.Result, error)
}

type chunk struct {
	coord   region.Coord
	state   State
	visible bool

	data *workpool.Future[*region.Region]
	mesh *workpool.Future[*mesh.Result]

	entities []ecs.ID
}

type Focus struct {
	Pos     mathx.Vec3 `json:"pos"`
	Forward mathx.Vec3 `json:"forward"`
	Set     bool       `json:"set"`
}

type Stats struct {
	Tick        uint64 `json:"tick"`
	Tracked     int    `json:"tracked"`
	PendingData int    `json:"pending_data"`
	PendingMesh int    `json:"pending_mesh"`
	Loaded      int    `json:"loaded"`
	Visible     int    `json:"visible"`
	InFlight    int    `json:"in_flight"`
	Entities    int    `json:"entities"`
	Admitted    uint64 `json:"admitted"`
	Unloads     uint64 `json:"unloads"`
	Failures    uint64 `json:"failures"`
}

type Streamer struct {
	cfg     Config
	src     RegionSource
	builder MeshBuilder
	world   *ecs.Registry
	index   *spatial.Index[ecs.ID]
	log     *log.Logger

	dataPool *workpool.Pool
	meshPool *workpool.Pool

	mu       sync.RWMutex
	chunks   map[region.Coord]*chunk
	sinks    []EventSink
	inFlight int
	tick     uint64
	admitted uint64
	unloads  uint64
	failures uint64
	closed   bool

	focusMu sync.Mutex
	focus   Focus

	stop     chan struct{}
	stopOnce sync.Once
}

// New starts the worker pools. The entity registry is owned by the streamer
// from here on and must not be mutated elsewhere.
func New(cfg Config, src RegionSource, builder MeshBuilder, world *ecs.Registry, logger *log.Logger) (*Streamer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stream config: %w", err)
	}
	if src == nil || builder == nil {
		return nil, errors.New("stream: nil region source or mesh builder")
	}
	if world == nil {
		world = ecs.NewRegistry()
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Dimension == "" {
		cfg.Dimension = region.DefaultDimension
	}
	ctx := context.Background()
	return &Streamer{
		cfg:      cfg,
		src:      src,
		builder:  builder,
		world:    world,
		index:    spatial.New[ecs.ID](cfg.SpatialCellSize),
		log:      logger,
		dataPool: workpool.New(ctx, "data", cfg.DataWorkers, cfg.MaxInFlight),
		meshPool: workpool.New(ctx, "mesh", cfg.MeshWorkers, cfg.MaxInFlight),
		chunks:   map[region.Coord]*chunk{},
		stop:     make(chan struct{}),
	}, nil
}

func (s *Streamer) Config() Config { return s.cfg }

// AddSink registers an event observer. Call before Run.
func (s *Streamer) AddSink(sink EventSink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// SetFocus records the observer pose consumed by the next tick of Run. Safe
// for concurrent use.
func (s *Streamer) SetFocus(pos, forward mathx.Vec3) {
	s.focusMu.Lock()
	s.focus = Focus{Pos: pos, Forward: forward, Set: true}
	s.focusMu.Unlock()
}

func (s *Streamer) Focus() Focus {
	s.focusMu.Lock()
	defer s.focusMu.Unlock()
	return s.focus
}

// GroundHeight queries the region source directly, outside the admission cap.
func (s *Streamer) GroundHeight(ctx context.Context, x, y float64) (float64, error) {
	return s.src.GroundHeight(ctx, s.cfg.Dimension, x, y)
}

// Run ticks at TickRateHz using the latest focus until ctx is done or Close
// is called.
func (s *Streamer) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			f := s.Focus()
			if !f.Set {
				continue
			}
			s.Tick(f.Pos, f.Forward, dt)
		}
	}
}

// Tick advances the pipeline once: poll finished stages, recompute the needed
// set, update residency and visibility, then admit new loads.
func (s *Streamer) Tick(pos, forward mathx.Vec3, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.tick++

	s.poll()
	center := region.CoordAt(pos.X, pos.Y, s.cfg.RegionSize)
	needed := s.neededSet(pos, forward, center)
	s.updateResidency(center, needed)
	s.admit(needed)
	s.world.Update(dt)
}

func (s *Streamer) sortedCoords() []region.Coord {
	out := make([]region.Coord, 0, len(s.chunks))
	for c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func (s *Streamer) poll() {
	for _, c := range s.sortedCoords() {
		ch := s.chunks[c]
		switch ch.state {
		case PendingData:
			r, ok, err := ch.data.Poll()
			if !ok {
				continue
			}
			ch.data = nil
			if err != nil {
				s.fail(ch, failure.Generation, err)
				continue
			}
			ch.state = PendingMesh
			ch.mesh = workpool.Submit(s.meshPool, func(ctx context.Context) (*mesh.Result, error) {
				return s.builder.Build(ctx, r)
			})
			s.emit(ch, EventDataReady)
		case PendingMesh:
			res, ok, err := ch.mesh.Poll()
			if !ok {
				continue
			}
			ch.mesh = nil
			if err != nil {
				s.fail(ch, failure.MeshBuild, err)
				continue
			}
			if err := s.instantiate(ch, res); err != nil {
				s.fail(ch, failure.MeshBuild, err)
				continue
			}
			s.inFlight--
			ch.state = Loaded
			ch.visible = true
			s.emit(ch, EventLoaded)
		}
	}
}

// Every data-stage error, store errors and panics included, is reported as a
// generation failure; the original error stays in the chain.
func (s *Streamer) fail(ch *chunk, stage failure.Kind, err error) {
	prev := ch.state
	err = &failure.Error{Kind: stage, Op: "load " + ch.coord.String(), Err: err}
	s.failures++
	s.inFlight--
	s.destroyEntities(ch)
	s.log.Printf("chunk %s %s failed: %v", ch.coord, prev, err)
	delete(s.chunks, ch.coord)
	ch.state = Unloaded
	ch.visible = false
	s.emitFailure(ch, prev, err)
}

func (s *Streamer) instantiate(ch *chunk, res *mesh.Result) error {
	attach := func(id ecs.ID, cs ...ecs.Component) error {
		for _, c := range cs {
			if err := s.world.Attach(id, c); err != nil {
				return err
			}
		}
		if s.cfg.FadeIn > 0 {
			return s.world.Attach(id, ecs.Fade{Duration: s.cfg.FadeIn})
		}
		return nil
	}

	ox, oy := float64(ch.coord.X)*s.cfg.RegionSize, float64(ch.coord.Y)*s.cfg.RegionSize
	terrain := s.world.CreateEntity()
	ch.entities = append(ch.entities, terrain)
	if err := attach(terrain,
		ecs.Transform{Pos: mathx.Vec3{X: ox, Y: oy}, Scale: 1},
		ecs.Visual{Handle: res.Terrain.Handle, Model: "terrain"},
		ecs.Collider{Handle: res.Terrain.Handle + "/heightfield"},
	); err != nil {
		return err
	}

	for _, p := range res.Pieces {
		id := s.world.CreateEntity()
		ch.entities = append(ch.entities, id)
		cs := []ecs.Component{
			ecs.Transform{Pos: p.Placement.Pos, Scale: p.Placement.Scale, Rotation: p.Placement.Rotation},
			ecs.Visual{Handle: p.Visual, Model: p.Placement.Model},
		}
		if p.Collider != "" {
			cs = append(cs, ecs.Collider{Handle: p.Collider, Radius: p.ColliderRadius})
		}
		if err := attach(id, cs...); err != nil {
			return err
		}
		s.index.Insert(id, p.Placement.Pos)
	}
	return nil
}

// destroyEntities is the single teardown path for a chunk's entities.
func (s *Streamer) destroyEntities(ch *chunk) {
	for _, id := range ch.entities {
		s.index.Remove(id)
		if err := s.world.DestroyEntity(id); err != nil {
			s.log.Printf("chunk %s: %v", ch.coord, err)
		}
	}
	ch.entities = nil
}

func (s *Streamer) unload(ch *chunk) {
	n := len(ch.entities)
	s.destroyEntities(ch)
	delete(s.chunks, ch.coord)
	ch.state = Unloaded
	ch.visible = false
	s.unloads++
	s.emitCount(ch, EventUnloaded, n)
}

type candidate struct {
	coord region.Coord
	d2    float64
}

// neededSet maps each needed coordinate to its squared world distance from
// the observer.
func (s *Streamer) neededSet(pos, forward mathx.Vec3, center region.Coord) map[region.Coord]float64 {
	size := s.cfg.RegionSize
	fx, fy, flen := forward.Planar()
	halfFOV := s.cfg.FOVDegrees / 2 * s.cfg.FOVSlack * math.Pi / 180
	near2 := s.cfg.NearRadius * s.cfg.NearRadius
	render2 := s.cfg.RenderRadius * s.cfg.RenderRadius

	needed := map[region.Coord]float64{}
	ring := s.cfg.RenderRadius + 1
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			c := region.Coord{X: center.X + dx, Y: center.Y + dy}
			cd2 := dx*dx + dy*dy
			if cd2 > render2 {
				continue
			}
			vx := (float64(c.X)+0.5)*size - pos.X
			vy := (float64(c.Y)+0.5)*size - pos.Y
			d2 := vx*vx + vy*vy
			if cd2 <= near2 || inSector(vx, vy, fx, fy, flen, halfFOV, size/2) {
				needed[c] = d2
			}
		}
	}
	return needed
}

func inSector(vx, vy, fx, fy, flen, halfFOV, halfSize float64) bool {
	if flen == 0 || halfFOV >= math.Pi {
		return true
	}
	d := math.Hypot(vx, vy)
	if d == 0 {
		return true
	}
	cos := (vx*fx + vy*fy) / (d * flen)
	angle := math.Acos(mathx.Clamp(cos, -1, 1))
	return angle <= halfFOV+math.Atan2(halfSize, d)
}

func (s *Streamer) updateResidency(center region.Coord, needed map[region.Coord]float64) {
	keep2 := s.cfg.KeepRadius * s.cfg.KeepRadius
	for _, c := range s.sortedCoords() {
		ch := s.chunks[c]
		if ch.state != Loaded {
			continue
		}
		if c.Dist2(center) > keep2 {
			s.unload(ch)
			continue
		}
		_, want := needed[c]
		if want == ch.visible {
			continue
		}
		for _, id := range ch.entities {
			_ = s.world.SetVisible(id, want)
		}
		ch.visible = want
		if want {
			s.emit(ch, EventShown)
		} else {
			s.emit(ch, EventHidden)
		}
	}
}

func (s *Streamer) admit(needed map[region.Coord]float64) {
	slots := s.cfg.MaxInFlight - s.inFlight
	if slots <= 0 {
		return
	}
	var cands []candidate
	for c, d2 := range needed {
		if _, tracked := s.chunks[c]; !tracked {
			cands = append(cands, candidate{coord: c, d2: d2})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.d2 != b.d2 {
			return a.d2 < b.d2
		}
		if a.coord.X != b.coord.X {
			return a.coord.X < b.coord.X
		}
		return a.coord.Y < b.coord.Y
	})
	if len(cands) > slots {
		cands = cands[:slots]
	}
	dim := s.cfg.Dimension
	for _, cand := range cands {
		c := cand.coord
		ch := &chunk{coord: c, state: PendingData}
		ch.data = workpool.Submit(s.dataPool, func(ctx context.Context) (*region.Region, error) {
			return s.src.GetOrCreate(ctx, dim, c)
		})
		s.chunks[c] = ch
		s.inFlight++
		s.admitted++
		s.emit(ch, EventAdmitted)
	}
}

func (s *Streamer) emit(ch *chunk, kind EventKind) {
	s.emitCount(ch, kind, len(ch.entities))
}

func (s *Streamer) emitCount(ch *chunk, kind EventKind, entities int) {
	if len(s.sinks) == 0 {
		return
	}
	e := Event{
		Tick:      s.tick,
		Kind:      kind,
		Dimension: s.cfg.Dimension,
		Coord:     ch.coord,
		State:     ch.state,
		Visible:   ch.visible,
		Entities:  entities,
	}
	for _, sink := range s.sinks {
		sink.OnChunkEvent(e)
	}
}

func (s *Streamer) emitFailure(ch *chunk, from State, err error) {
	if len(s.sinks) == 0 {
		return
	}
	e := Event{
		Tick:      s.tick,
		Kind:      EventFailed,
		Dimension: s.cfg.Dimension,
		Coord:     ch.coord,
		State:     Unloaded,
		Failure:   failure.KindOf(err),
		Error:     fmt.Sprintf("%s: %v", from, err),
	}
	for _, sink := range s.sinks {
		sink.OnChunkEvent(e)
	}
}

// State reports the pipeline state of a coordinate. Untracked coordinates are
// Unloaded.
func (s *Streamer) State(c region.Coord) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ch, ok := s.chunks[c]; ok {
		return ch.state
	}
	return Unloaded
}

func (s *Streamer) Visible(c region.Coord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[c]
	return ok && ch.visible
}

// Entities returns a copy of the entity IDs owned by a loaded chunk.
func (s *Streamer) Entities(c region.Coord) []ecs.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[c]
	if !ok {
		return nil
	}
	return append([]ecs.ID(nil), ch.entities...)
}

// Nearby returns the placement entities within radius of pos.
func (s *Streamer) Nearby(pos mathx.Vec3, radius float64) []ecs.ID {
	return s.index.QueryRadius(pos, radius)
}

func (s *Streamer) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Tick:     s.tick,
		Tracked:  len(s.chunks),
		InFlight: s.inFlight,
		Entities: s.world.Len(),
		Admitted: s.admitted,
		Unloads:  s.unloads,
		Failures: s.failures,
	}
	for _, ch := range s.chunks {
		switch ch.state {
		case PendingData:
			st.PendingData++
		case PendingMesh:
			st.PendingMesh++
		case Loaded:
			st.Loaded++
			if ch.visible {
				st.Visible++
			}
		}
	}
	return st
}

// Close stops Run, waits for in-flight jobs and unloads every loaded chunk.
func (s *Streamer) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.dataPool.Close()
	s.meshPool.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, c := range s.sortedCoords() {
		ch := s.chunks[c]
		if ch.state == Loaded {
			s.unload(ch)
			continue
		}
		delete(s.chunks, c)
	}
	s.inFlight = 0
}
