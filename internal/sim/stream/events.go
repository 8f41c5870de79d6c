package stream

import (
	"fmt"

	"terrastream.ai/internal/sim/failure"
	"terrastream.ai/internal/sim/terrain/region"
)

type State uint8

const (
	Unloaded State = iota
	PendingData
	PendingMesh
	Loaded
)

func (s State) String() string {
	switch s {
	case PendingData:
		return "PENDING_DATA"
	case PendingMesh:
		return "PENDING_MESH"
	case Loaded:
		return "LOADED"
	default:
		return "UNLOADED"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{Unloaded, PendingData, PendingMesh, Loaded} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown chunk state %q", b)
}

type EventKind string

const (
	EventAdmitted  EventKind = "ADMITTED"
	EventDataReady EventKind = "DATA_READY"
	EventLoaded    EventKind = "LOADED"
	EventShown     EventKind = "SHOWN"
	EventHidden    EventKind = "HIDDEN"
	EventUnloaded  EventKind = "UNLOADED"
	EventFailed    EventKind = "FAILED"
)

// Event describes one chunk transition. Failure is set only for EventFailed.
type Event struct {
	Tick      uint64       `json:"tick"`
	Kind      EventKind    `json:"kind"`
	Dimension string       `json:"dimension"`
	Coord     region.Coord `json:"coord"`
	State     State        `json:"state"`
	Visible   bool         `json:"visible"`
	Entities  int          `json:"entities,omitempty"`
	Failure   failure.Kind `json:"failure,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// EventSink receives events on the orchestrating goroutine while the
// streamer holds its lock. Implementations must not block or call back into
// the streamer.
type EventSink interface {
	OnChunkEvent(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) OnChunkEvent(e Event) { f(e) }
