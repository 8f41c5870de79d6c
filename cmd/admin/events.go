package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	persistlog "terrastream.ai/internal/persistence/log"
	"terrastream.ai/internal/sim/stream"
)

type eventSummary struct {
	Events   int
	ByKind   map[stream.EventKind]int
	Failures map[string]int
	LastTick uint64
}

func summarizeEvents(events []stream.Event) eventSummary {
	s := eventSummary{ByKind: map[stream.EventKind]int{}, Failures: map[string]int{}}
	for _, e := range events {
		s.Events++
		s.ByKind[e.Kind]++
		if e.Kind == stream.EventFailed {
			s.Failures[string(e.Failure)]++
		}
		if e.Tick > s.LastTick {
			s.LastTick = e.Tick
		}
	}
	return s
}

func latestEventFile(dataDir string) string {
	files, _ := filepath.Glob(filepath.Join(dataDir, "events", "chunks-*.jsonl.zst"))
	if len(files) == 0 {
		return ""
	}
	sort.Strings(files)
	return files[len(files)-1]
}

func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	file := fs.String("file", "", "event file (default: latest under <data>/events)")
	_ = fs.Parse(args)

	path := *file
	if path == "" {
		path = latestEventFile(*dataDir)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no event files found")
		os.Exit(1)
	}
	events, err := persistlog.ReadEvents(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	s := summarizeEvents(events)
	fmt.Printf("%s: %d events, last tick %d\n", filepath.Base(path), s.Events, s.LastTick)
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-10s %d\n", k, s.ByKind[stream.EventKind(k)])
	}
	failed := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		failed = append(failed, k)
	}
	sort.Strings(failed)
	for _, k := range failed {
		fmt.Printf("  failure %-12s %d\n", k, s.Failures[k])
	}
}
