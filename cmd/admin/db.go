package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"terrastream.ai/internal/sim/terrain/region"
)

func regionsCmd(args []string) {
	fs := flag.NewFlagSet("regions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/regions.sqlite)")
	dim := fs.String("dim", region.DefaultDimension, "dimension id")
	limit := fs.Int("limit", 50, "result limit (0 = all)")
	_ = fs.Parse(args)

	db := openDB(*dataDir, *dbPath)
	defer db.Close()

	rows, err := db.ListRegions(context.Background(), *dim)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	var total uint64
	for i, r := range rows {
		total += uint64(r.BlobBytes)
		if *limit > 0 && i >= *limit {
			continue
		}
		settlement := r.Settlement
		if settlement == "" {
			settlement = "-"
		}
		fmt.Printf("%6d %6d  %-9s %-8s %4d placements  %8s  %s\n",
			r.Coord.X, r.Coord.Y, r.Biome, settlement, r.Placements, humanize.Bytes(uint64(r.BlobBytes)), r.UpdatedAt)
	}
	fmt.Printf("%s regions, %s stored\n", humanize.Comma(int64(len(rows))), humanize.Bytes(total))
}

type inspectReport struct {
	Coord      region.Coord
	Biome      string
	Settlement string
	MinHeight  float64
	MaxHeight  float64
	Nodes      int
	ByModel    map[string]int
}

func inspectRegion(r *region.Region) inspectReport {
	lo, hi := r.MinMax()
	rep := inspectReport{
		Coord:      r.Coord,
		Biome:      string(r.Biome),
		Settlement: string(r.Settlement),
		MinHeight:  lo,
		MaxHeight:  hi,
		Nodes:      len(r.Heights),
		ByModel:    map[string]int{},
	}
	for _, p := range r.Placements {
		rep.ByModel[p.Model]++
	}
	return rep
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/regions.sqlite)")
	dim := fs.String("dim", region.DefaultDimension, "dimension id")
	x := fs.Int("x", 0, "region x")
	y := fs.Int("y", 0, "region y")
	_ = fs.Parse(args)

	db := openDB(*dataDir, *dbPath)
	defer db.Close()

	r, err := db.GetRegion(context.Background(), *dim, region.Coord{X: *x, Y: *y})
	if err != nil {
		fmt.Fprintln(os.Stderr, "get:", err)
		os.Exit(1)
	}
	if r == nil {
		fmt.Fprintf(os.Stderr, "region %d,%d not generated in %s\n", *x, *y, *dim)
		os.Exit(1)
	}
	rep := inspectRegion(r)
	fmt.Printf("region %s biome=%s settlement=%q\n", rep.Coord, rep.Biome, rep.Settlement)
	fmt.Printf("heightmap %s nodes, height %.2f..%.2f\n", humanize.Comma(int64(rep.Nodes)), rep.MinHeight, rep.MaxHeight)
	models := make([]string, 0, len(rep.ByModel))
	for m := range rep.ByModel {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		fmt.Printf("  %-16s %d\n", m, rep.ByModel[m])
	}
}
