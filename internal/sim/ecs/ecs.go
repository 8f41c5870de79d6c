// Package ecs is the headless entity world the streamer instantiates chunks
// into. It is not safe for concurrent use: only the orchestrating goroutine
// creates, mutates and destroys entities.
package ecs

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"terrastream.ai/internal/sim/mathx"
)

type ID uint64

var ErrUnknownEntity = errors.New("ecs: unknown entity")

// Component is a facet attached to an entity. The registry stores at most one
// component per name.
type Component interface {
	ComponentName() string
}

type Transform struct {
	Pos      mathx.Vec3
	Scale    float64
	Rotation float64
}

func (Transform) ComponentName() string { return "transform" }

type Visual struct {
	Handle string
	Model  string
}

func (Visual) ComponentName() string { return "visual" }

type Collider struct {
	Handle string
	Radius float64
}

func (Collider) ComponentName() string { return "collider" }

// Fade ramps visibility in over Duration.
type Fade struct {
	Duration time.Duration
	Elapsed  time.Duration
}

func (Fade) ComponentName() string { return "fade" }

func (f Fade) Alpha() float64 {
	if f.Duration <= 0 || f.Elapsed >= f.Duration {
		return 1
	}
	return float64(f.Elapsed) / float64(f.Duration)
}

type record struct {
	components map[string]Component
	visible    bool
}

type Stats struct {
	Live      int    `json:"live"`
	Created   uint64 `json:"created"`
	Destroyed uint64 `json:"destroyed"`
}

type Registry struct {
	next ID
	live map[ID]*record

	created   uint64
	destroyed uint64

	// OnRelease runs once per component when its entity is destroyed, so
	// backends can free the visual or physics resources behind a handle.
	OnRelease func(id ID, c Component)
}

func NewRegistry() *Registry {
	return &Registry{live: map[ID]*record{}}
}

func (r *Registry) CreateEntity() ID {
	r.next++
	r.live[r.next] = &record{components: map[string]Component{}, visible: true}
	r.created++
	return r.next
}

// DestroyEntity tears down every component of the entity. Destroying an
// entity twice is an error.
func (r *Registry) DestroyEntity(id ID) error {
	rec, ok := r.live[id]
	if !ok {
		return fmt.Errorf("destroy %d: %w", id, ErrUnknownEntity)
	}
	if r.OnRelease != nil {
		names := make([]string, 0, len(rec.components))
		for name := range rec.components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			r.OnRelease(id, rec.components[name])
		}
	}
	delete(r.live, id)
	r.destroyed++
	return nil
}

func (r *Registry) Attach(id ID, c Component) error {
	rec, ok := r.live[id]
	if !ok {
		return fmt.Errorf("attach %s to %d: %w", c.ComponentName(), id, ErrUnknownEntity)
	}
	rec.components[c.ComponentName()] = c
	return nil
}

func (r *Registry) Get(id ID, name string) (Component, bool) {
	rec, ok := r.live[id]
	if !ok {
		return nil, false
	}
	c, ok := rec.components[name]
	return c, ok
}

func (r *Registry) SetVisible(id ID, visible bool) error {
	rec, ok := r.live[id]
	if !ok {
		return fmt.Errorf("set visible %d: %w", id, ErrUnknownEntity)
	}
	rec.visible = visible
	return nil
}

func (r *Registry) Visible(id ID) bool {
	rec, ok := r.live[id]
	return ok && rec.visible
}

func (r *Registry) Alive(id ID) bool {
	_, ok := r.live[id]
	return ok
}

func (r *Registry) Len() int { return len(r.live) }

func (r *Registry) Stats() Stats {
	return Stats{Live: len(r.live), Created: r.created, Destroyed: r.destroyed}
}

// Update advances fades and drops the ones that completed.
func (r *Registry) Update(dt time.Duration) {
	for _, rec := range r.live {
		c, ok := rec.components["fade"]
		if !ok {
			continue
		}
		f := c.(Fade)
		f.Elapsed += dt
		if f.Elapsed >= f.Duration {
			delete(rec.components, "fade")
			continue
		}
		rec.components["fade"] = f
	}
}
