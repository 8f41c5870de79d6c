package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"terrastream.ai/internal/observerproto"
	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/stream"
	"terrastream.ai/internal/sim/terrain/region"
)

// Streamer is the part of the chunk streamer exposed to observers.
type Streamer interface {
	SetFocus(pos, forward mathx.Vec3)
	GroundHeight(ctx context.Context, x, y float64) (float64, error)
	Stats() stream.Stats
	Config() stream.Config
}

// Info is static world metadata served by the bootstrap endpoint.
type Info struct {
	Seed         int64
	Terrain      region.Params
	ModelPalette []string
	ModelDigest  string
}

type Options struct {
	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool
	// QueueSize bounds per-connection outbound messages.
	QueueSize int
}

type client struct {
	out    chan []byte
	events map[string]bool
}

type Server struct {
	streamer Streamer
	info     Info
	opts     Options
	log      *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.RWMutex
	clients map[uint64]*client
	dropped atomic.Uint64
}

func NewServer(st Streamer, info Info, opts Options, logger *log.Logger) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &Server{
		streamer: st,
		info:     info,
		opts:     opts,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[uint64]*client{},
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/ground", s.GroundHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	return mux
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		cfg := s.streamer.Config()
		writeJSON(rw, http.StatusOK, observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Dimension:       cfg.Dimension,
			Seed:            s.info.Seed,
			Terrain:         s.info.Terrain,
			Stream: observerproto.StreamParams{
				RegionSize:   cfg.RegionSize,
				RenderRadius: cfg.RenderRadius,
				KeepRadius:   cfg.KeepRadius,
				NearRadius:   cfg.NearRadius,
				FOVDegrees:   cfg.FOVDegrees,
				TickRateHz:   cfg.TickRateHz,
			},
			ModelPalette: s.info.ModelPalette,
			ModelDigest:  s.info.ModelDigest,
			Stats:        s.streamer.Stats(),
		})
	}
}

// GroundHandler answers GET /v1/ground?x=&y= synchronously; the owning region
// may be generated on demand.
func (s *Server) GroundHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		q := r.URL.Query()
		x, errX := strconv.ParseFloat(q.Get("x"), 64)
		y, errY := strconv.ParseFloat(q.Get("y"), 64)
		if errX != nil || errY != nil {
			writeJSON(rw, http.StatusBadRequest, observerproto.NewError(observerproto.ErrProtoBadRequest, "x and y must be numbers"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		h, err := s.streamer.GroundHeight(ctx, x, y)
		if err != nil {
			s.log.Printf("ground %v,%v: %v", x, y, err)
			writeJSON(rw, http.StatusInternalServerError, observerproto.NewError(observerproto.ErrInternal, err.Error()))
			return
		}
		c := region.CoordAt(x, y, s.streamer.Config().RegionSize)
		writeJSON(rw, http.StatusOK, observerproto.GroundResponse{X: x, Y: y, Height: h, Region: [2]int{c.X, c.Y}})
	}
}

// OnChunkEvent fans an event out to every connected observer. Slow clients
// lose messages rather than stalling the tick.
func (s *Server) OnChunkEvent(e stream.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.clients) == 0 {
		return
	}
	b, err := json.Marshal(chunkMsg(e))
	if err != nil {
		return
	}
	for _, c := range s.clients {
		if len(c.events) > 0 && !c.events[string(e.Kind)] {
			continue
		}
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func chunkMsg(e stream.Event) observerproto.ChunkMsg {
	return observerproto.ChunkMsg{
		Type:            observerproto.TypeChunk,
		ProtocolVersion: observerproto.Version,
		Tick:            e.Tick,
		Event:           string(e.Kind),
		Dimension:       e.Dimension,
		X:               e.Coord.X,
		Y:               e.Coord.Y,
		State:           e.State.String(),
		Visible:         e.Visible,
		Entities:        e.Entities,
		Failure:         string(e.Failure),
		Error:           e.Error,
	}
}

func statsMsg(st stream.Stats) observerproto.StatsMsg {
	return observerproto.StatsMsg{
		Type:            observerproto.TypeStats,
		ProtocolVersion: observerproto.Version,
		Tick:            st.Tick,
		Tracked:         st.Tracked,
		Loaded:          st.Loaded,
		Visible:         st.Visible,
		InFlight:        st.InFlight,
		Entities:        st.Entities,
		Failures:        st.Failures,
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := observerproto.DecodeBase(msg)
		if err != nil || base.Type != observerproto.TypeSubscribe {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}
		if base.ProtocolVersion != observerproto.Version {
			closeWith(conn, websocket.ClosePolicyViolation, "unsupported protocol_version")
			return
		}
		sub, err := observerproto.DecodeSubscribe(msg)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, "bad subscribe")
			return
		}

		id := s.nextID.Add(1)
		c := &client{out: make(chan []byte, s.opts.QueueSize)}
		if len(sub.Events) > 0 {
			c.events = map[string]bool{}
			for _, k := range sub.Events {
				c.events[k] = true
			}
		}
		s.mu.Lock()
		s.clients[id] = c
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, id)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			var statsC <-chan time.Time
			if sub.StatsEveryMs > 0 {
				t := time.NewTicker(time.Duration(sub.StatsEveryMs) * time.Millisecond)
				defer t.Stop()
				statsC = t.C
			}
			write := func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				return conn.WriteMessage(websocket.TextMessage, b)
			}
			for {
				var b []byte
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b = <-c.out:
				case <-statsC:
					b, _ = json.Marshal(statsMsg(s.streamer.Stats()))
				}
				if err := write(b); err != nil {
					writeErr <- err
					cancel()
					return
				}
			}
		}()

		// Reader loop: FOCUS updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			focus, err := observerproto.DecodeFocus(msg)
			if err != nil {
				s.reply(c, observerproto.NewError(observerproto.ErrProtoBadRequest, err.Error()))
				continue
			}
			if focus.ProtocolVersion != observerproto.Version {
				s.reply(c, observerproto.NewError(observerproto.ErrProtoVersion, "unsupported protocol_version"))
				continue
			}
			s.streamer.SetFocus(
				mathx.Vec3{X: focus.Pos[0], Y: focus.Pos[1], Z: focus.Pos[2]},
				mathx.Vec3{X: focus.Forward[0], Y: focus.Forward[1], Z: focus.Forward[2]},
			)
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) reply(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
		s.dropped.Add(1)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
