package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"terrastream.ai/internal/observerproto"
)

func fetch(baseURL, path string, q url.Values) ([]byte, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return b, nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("raw", false, "print the bootstrap JSON as returned")
	_ = fs.Parse(args)

	b, err := fetch(*baseURL, "/v1/bootstrap", nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	if *raw {
		fmt.Println(string(b))
		return
	}
	var boot struct {
		observerproto.BootstrapResponse
		Stats struct {
			Tick     uint64 `json:"tick"`
			Tracked  int    `json:"tracked"`
			Loaded   int    `json:"loaded"`
			Visible  int    `json:"visible"`
			InFlight int    `json:"in_flight"`
			Entities int    `json:"entities"`
			Failures uint64 `json:"failures"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(b, &boot); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	sp := boot.Stream
	fmt.Printf("protocol %s dimension=%s seed=%d\n", boot.ProtocolVersion, boot.Dimension, boot.Seed)
	fmt.Printf("stream region_size=%v render=%d keep=%d near=%d fov=%v tick_rate=%dHz\n",
		sp.RegionSize, sp.RenderRadius, sp.KeepRadius, sp.NearRadius, sp.FOVDegrees, sp.TickRateHz)
	fmt.Printf("models %d digest=%s\n", len(boot.ModelPalette), boot.ModelDigest)
	st := boot.Stats
	fmt.Printf("tick %d tracked=%d loaded=%d visible=%d in_flight=%d entities=%d failures=%d\n",
		st.Tick, st.Tracked, st.Loaded, st.Visible, st.InFlight, st.Entities, st.Failures)
}

func groundCmd(args []string) {
	fs := flag.NewFlagSet("ground", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	x := fs.Float64("x", 0, "world x")
	y := fs.Float64("y", 0, "world y")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("x", strconv.FormatFloat(*x, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(*y, 'f', -1, 64))
	b, err := fetch(*baseURL, "/v1/ground", q)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	var g observerproto.GroundResponse
	if err := json.Unmarshal(b, &g); err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Printf("ground at %v,%v = %.3f (region %d,%d)\n", g.X, g.Y, g.Height, g.Region[0], g.Region[1])
}
