package observerproto

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version is the observer protocol version.
const Version = "1.0"

// Message types.
const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFocus     = "FOCUS"
	TypeChunk     = "CHUNK"
	TypeStats     = "STATS"
	TypeError     = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Client -> Server. First message on the connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// StatsEveryMs enables periodic STATS messages; zero disables them.
	StatsEveryMs int `json:"stats_every_ms,omitempty"`
	// Events filters CHUNK messages by event kind; empty means all.
	Events []string `json:"events,omitempty"`
}

// Client -> Server. Moves the observer that drives streaming.
type FocusMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Pos             [3]float64 `json:"pos"`
	Forward         [3]float64 `json:"forward,omitempty"`
}

// Server -> Client. One chunk lifecycle event.
type ChunkMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Event           string `json:"event"`
	Dimension       string `json:"dimension"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	State           string `json:"state"`
	Visible         bool   `json:"visible"`
	Entities        int    `json:"entities,omitempty"`
	Failure         string `json:"failure,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Server -> Client.
type StatsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Tracked         int    `json:"tracked"`
	Loaded          int    `json:"loaded"`
	Visible         int    `json:"visible"`
	InFlight        int    `json:"in_flight"`
	Entities        int    `json:"entities"`
	Failures        uint64 `json:"failures"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// HTTP response for GET /v1/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	Dimension       string       `json:"dimension"`
	Seed            int64        `json:"seed"`
	Terrain         any          `json:"terrain"`
	Stream          StreamParams `json:"stream"`
	ModelPalette    []string     `json:"model_palette"`
	ModelDigest     string       `json:"model_digest"`
	Stats           any          `json:"stats"`
}

type StreamParams struct {
	RegionSize   float64 `json:"region_size"`
	RenderRadius int     `json:"render_radius"`
	KeepRadius   int     `json:"keep_radius"`
	NearRadius   int     `json:"near_radius"`
	FOVDegrees   float64 `json:"fov_degrees"`
	TickRateHz   int     `json:"tick_rate_hz"`
}

// HTTP response for GET /v1/ground.
type GroundResponse struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Height float64 `json:"height"`
	Region [2]int  `json:"region"`
}

//go:embed schemas/*.json
var schemaFS embed.FS

var loadSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	out := map[string]*jsonschema.Schema{}
	for typ, name := range map[string]string{
		TypeFocus:     "focus.schema.json",
		TypeSubscribe: "subscribe.schema.json",
	} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		s, err := jsonschema.CompileString(name, string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out[typ] = s
	}
	return out, nil
})

// Validate checks a raw client message against the schema for its type.
func Validate(typ string, raw []byte) error {
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[typ]
	if !ok {
		return fmt.Errorf("no schema for message type %q", typ)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}

func DecodeFocus(raw []byte) (FocusMsg, error) {
	var m FocusMsg
	if err := Validate(TypeFocus, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}

func DecodeSubscribe(raw []byte) (SubscribeMsg, error) {
	var m SubscribeMsg
	if err := Validate(TypeSubscribe, raw); err != nil {
		return m, err
	}
	err := json.Unmarshal(raw, &m)
	return m, err
}
