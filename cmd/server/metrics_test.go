package main

import (
	"bytes"
	"io"
	"log"
	"strings"
	"testing"

	"terrastream.ai/internal/sim/stream"
	"terrastream.ai/internal/sim/terrain/region"
)

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, "overworld",
		stream.Stats{Tick: 12, Loaded: 9, Visible: 5, PendingData: 2, Entities: 140, Failures: 1},
		region.Stats{CacheHits: 30, Generated: 11},
		2, 0)
	out := buf.String()
	for _, want := range []string{
		`terrastream_tick{dimension="overworld"} 12`,
		`terrastream_chunks{dimension="overworld",state="LOADED"} 9`,
		`terrastream_chunks{dimension="overworld",state="PENDING_DATA"} 2`,
		`terrastream_visible_chunks{dimension="overworld"} 5`,
		`terrastream_pipeline_total{dimension="overworld",event="failed"} 1`,
		`terrastream_region_resolutions_total{tier="generate"} 11`,
		`terrastream_observer_clients 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}

func TestOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()
	if _, closeFn, err := openStore("memory", dir, logger); err != nil {
		t.Fatalf("memory: %v", err)
	} else {
		closeFn()
	}
	s, closeFn, err := openStore("sqlite", dir, logger)
	if err != nil || s == nil {
		t.Fatalf("sqlite: %v", err)
	}
	closeFn()
	if _, _, err := openStore("d1", dir, logger); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }
