package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"terrastream.ai/internal/persistence/regiondb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "regions":
			regionsCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "pregen":
			pregenCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "ground":
			groundCmd(os.Args[2:])
			return
		}
	}
	dimsCmd(os.Args[1:])
}

func openDB(dataDir, dbPath string) *regiondb.Store {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "regions.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := regiondb.Open(path, log.New(os.Stderr, "[regiondb] ", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

func dimsCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/regions.sqlite)")
	_ = fs.Parse(args)

	db := openDB(*dataDir, *dbPath)
	defer db.Close()

	dims, err := db.ListDimensions(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, d := range dims {
		fmt.Printf("%s\tseed=%d\tregion_size=%v\tresolution=%d\n", d.ID, d.Seed, d.Params.RegionSize, d.Params.Resolution)
	}
}
