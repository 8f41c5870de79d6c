package ecs

import (
	"errors"
	"testing"
	"time"

	"terrastream.ai/internal/sim/mathx"
)

func TestDestroyReleasesEveryComponentOnce(t *testing.T) {
	r := NewRegistry()
	released := map[string]int{}
	r.OnRelease = func(id ID, c Component) { released[c.ComponentName()]++ }

	id := r.CreateEntity()
	for _, c := range []Component{
		Transform{Pos: mathx.Vec3{X: 1}},
		Visual{Handle: "h1", Model: "tree_oak"},
		Collider{Handle: "c1", Radius: 1},
	} {
		if err := r.Attach(id, c); err != nil {
			t.Fatalf("Attach: %v", err)
		}
	}
	if err := r.DestroyEntity(id); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if err := r.DestroyEntity(id); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("second destroy: %v", err)
	}
	for _, name := range []string{"transform", "visual", "collider"} {
		if released[name] != 1 {
			t.Fatalf("%s released %d times", name, released[name])
		}
	}
	if st := r.Stats(); st.Live != 0 || st.Created != 1 || st.Destroyed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestFadeCompletes(t *testing.T) {
	r := NewRegistry()
	id := r.CreateEntity()
	_ = r.Attach(id, Fade{Duration: 100 * time.Millisecond})
	r.Update(40 * time.Millisecond)
	c, ok := r.Get(id, "fade")
	if !ok {
		t.Fatalf("fade removed too early")
	}
	if a := c.(Fade).Alpha(); a < 0.39 || a > 0.41 {
		t.Fatalf("alpha=%v want 0.4", a)
	}
	r.Update(80 * time.Millisecond)
	if _, ok := r.Get(id, "fade"); ok {
		t.Fatalf("fade should be gone once complete")
	}
}

func TestUnknownEntity(t *testing.T) {
	r := NewRegistry()
	if err := r.Attach(99, Transform{}); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("Attach unknown: %v", err)
	}
	if err := r.SetVisible(99, false); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("SetVisible unknown: %v", err)
	}
	if r.Visible(99) || r.Alive(99) {
		t.Fatalf("unknown entity reported alive")
	}
}
