package main

import (
	"fmt"
	"io"
	"net/http"

	"terrastream.ai/internal/sim/stream"
	"terrastream.ai/internal/sim/terrain/region"
)

type statsSource interface {
	Stats() stream.Stats
}

type regionStatsSource interface {
	Stats() region.Stats
}

type clientCounter interface {
	Clients() int
	Dropped() uint64
}

func metricsHandler(dim string, st statsSource, gen regionStatsSource, obs clientCounter) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, dim, st.Stats(), gen.Stats(), obs.Clients(), obs.Dropped())
	}
}

func writeMetrics(w io.Writer, dim string, s stream.Stats, g region.Stats, clients int, dropped uint64) {
	fmt.Fprintf(w, "# HELP terrastream_tick Streamer tick counter.\n")
	fmt.Fprintf(w, "# TYPE terrastream_tick counter\n")
	fmt.Fprintf(w, "terrastream_tick{dimension=%q} %d\n", dim, s.Tick)

	fmt.Fprintf(w, "# HELP terrastream_chunks Tracked chunks by pipeline state.\n")
	fmt.Fprintf(w, "# TYPE terrastream_chunks gauge\n")
	fmt.Fprintf(w, "terrastream_chunks{dimension=%q,state=%q} %d\n", dim, stream.PendingData, s.PendingData)
	fmt.Fprintf(w, "terrastream_chunks{dimension=%q,state=%q} %d\n", dim, stream.PendingMesh, s.PendingMesh)
	fmt.Fprintf(w, "terrastream_chunks{dimension=%q,state=%q} %d\n", dim, stream.Loaded, s.Loaded)

	fmt.Fprintf(w, "# HELP terrastream_visible_chunks Loaded chunks currently shown.\n")
	fmt.Fprintf(w, "# TYPE terrastream_visible_chunks gauge\n")
	fmt.Fprintf(w, "terrastream_visible_chunks{dimension=%q} %d\n", dim, s.Visible)

	fmt.Fprintf(w, "# HELP terrastream_entities Live entities owned by loaded chunks.\n")
	fmt.Fprintf(w, "# TYPE terrastream_entities gauge\n")
	fmt.Fprintf(w, "terrastream_entities{dimension=%q} %d\n", dim, s.Entities)

	fmt.Fprintf(w, "# HELP terrastream_pipeline_total Pipeline counters.\n")
	fmt.Fprintf(w, "# TYPE terrastream_pipeline_total counter\n")
	fmt.Fprintf(w, "terrastream_pipeline_total{dimension=%q,event=%q} %d\n", dim, "admitted", s.Admitted)
	fmt.Fprintf(w, "terrastream_pipeline_total{dimension=%q,event=%q} %d\n", dim, "unloaded", s.Unloads)
	fmt.Fprintf(w, "terrastream_pipeline_total{dimension=%q,event=%q} %d\n", dim, "failed", s.Failures)

	fmt.Fprintf(w, "# HELP terrastream_region_resolutions_total Region requests by resolving tier.\n")
	fmt.Fprintf(w, "# TYPE terrastream_region_resolutions_total counter\n")
	fmt.Fprintf(w, "terrastream_region_resolutions_total{tier=%q} %d\n", "cache", g.CacheHits)
	fmt.Fprintf(w, "terrastream_region_resolutions_total{tier=%q} %d\n", "store", g.StoreHits)
	fmt.Fprintf(w, "terrastream_region_resolutions_total{tier=%q} %d\n", "generate", g.Generated)
	fmt.Fprintf(w, "terrastream_region_resolutions_total{tier=%q} %d\n", "failed", g.Failures)

	fmt.Fprintf(w, "# HELP terrastream_observer_clients Connected observer websockets.\n")
	fmt.Fprintf(w, "# TYPE terrastream_observer_clients gauge\n")
	fmt.Fprintf(w, "terrastream_observer_clients %d\n", clients)
	fmt.Fprintf(w, "terrastream_observer_dropped_total %d\n", dropped)
}
