package main

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"terrastream.ai/internal/observerproto"
)

func TestOrbitFocus(t *testing.T) {
	const eps = 1e-9
	f := orbitFocus(0, 100, time.Minute, 5)
	if f.Type != observerproto.TypeFocus || f.ProtocolVersion != observerproto.Version {
		t.Fatalf("header = %q %q", f.Type, f.ProtocolVersion)
	}
	if math.Abs(f.Pos[0]-100) > eps || math.Abs(f.Pos[1]) > eps || f.Pos[2] != 5 {
		t.Fatalf("start pos = %v", f.Pos)
	}
	if math.Abs(f.Forward[0]) > eps || math.Abs(f.Forward[1]-1) > eps {
		t.Fatalf("start forward = %v", f.Forward)
	}

	q := orbitFocus(15*time.Second, 100, time.Minute, 0)
	if math.Abs(q.Pos[0]) > eps || math.Abs(q.Pos[1]-100) > eps {
		t.Fatalf("quarter pos = %v", q.Pos)
	}
	if math.Abs(q.Forward[0]+1) > eps || math.Abs(q.Forward[1]) > eps {
		t.Fatalf("quarter forward = %v", q.Forward)
	}
}

func TestOrbitFocusPassesValidation(t *testing.T) {
	raw, err := json.Marshal(orbitFocus(7*time.Second, 250, time.Minute, 0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := observerproto.DecodeFocus(raw); err != nil {
		t.Fatalf("focus rejected: %v", err)
	}
}
