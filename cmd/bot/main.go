package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"terrastream.ai/internal/observerproto"
)

// orbitFocus places the observer on a circle around the origin at elapsed
// time t, facing along the direction of travel.
func orbitFocus(t time.Duration, radius float64, period time.Duration, height float64) observerproto.FocusMsg {
	theta := 2 * math.Pi * t.Seconds() / period.Seconds()
	sin, cos := math.Sincos(theta)
	return observerproto.FocusMsg{
		Type:            observerproto.TypeFocus,
		ProtocolVersion: observerproto.Version,
		Pos:             [3]float64{radius * cos, radius * sin, height},
		Forward:         [3]float64{-sin, cos, 0},
	}
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/observer/ws", "observer ws url")
		radius   = flag.Float64("radius", 400, "orbit radius in world units")
		period   = flag.Duration("period", 2*time.Minute, "time for one full orbit")
		interval = flag.Duration("interval", 250*time.Millisecond, "FOCUS send interval")
		statsMs  = flag.Int("stats_ms", 2000, "STATS push interval (0 disables)")
		quiet    = flag.Bool("quiet", false, "log STATS only")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		StatsEveryMs:    *statsMs,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	go readLoop(conn, logger, *quiet)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	start := time.Now()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := conn.WriteJSON(orbitFocus(time.Since(start), *radius, *period, 0)); err != nil {
				logger.Printf("send FOCUS: %v", err)
				return
			}
		}
	}
}

func readLoop(conn *websocket.Conn, logger *log.Logger, quiet bool) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			os.Exit(0)
		}
		base, err := observerproto.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeChunk:
			if quiet {
				continue
			}
			var c observerproto.ChunkMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			if c.Failure != "" {
				logger.Printf("tick=%d %s %d,%d failure=%s %s", c.Tick, c.Event, c.X, c.Y, c.Failure, c.Error)
				continue
			}
			logger.Printf("tick=%d %s %d,%d state=%s visible=%v entities=%d", c.Tick, c.Event, c.X, c.Y, c.State, c.Visible, c.Entities)

		case observerproto.TypeStats:
			var s observerproto.StatsMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			logger.Printf("STATS tick=%d tracked=%d loaded=%d visible=%d in_flight=%d entities=%d failures=%d",
				s.Tick, s.Tracked, s.Loaded, s.Visible, s.InFlight, s.Entities, s.Failures)

		case observerproto.TypeError:
			var e observerproto.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}
