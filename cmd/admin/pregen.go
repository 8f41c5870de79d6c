package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"terrastream.ai/internal/persistence/regiondb"
	"terrastream.ai/internal/sim/terrain/region"
	"terrastream.ai/internal/sim/tuning"
	"terrastream.ai/internal/sim/workpool"
)

type pregenReport struct {
	Requested int
	Failed    int
	Generated uint64
	Elapsed   time.Duration
}

// pregen resolves every region in the square of the given radius around
// center. Regions already in the store are only read.
func pregen(ctx context.Context, gen *region.Generator, dim string, center region.Coord, radius, workers int) (pregenReport, error) {
	before := gen.Stats().Generated
	start := time.Now()

	side := 2*radius + 1
	pool := workpool.New(ctx, "pregen", workers, side*side)
	defer pool.Close()

	var futures []*workpool.Future[*region.Region]
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			c := region.Coord{X: center.X + dx, Y: center.Y + dy}
			futures = append(futures, workpool.Submit(pool, func(ctx context.Context) (*region.Region, error) {
				return gen.GetOrCreate(ctx, dim, c)
			}))
		}
	}

	rep := pregenReport{Requested: len(futures)}
	var firstErr error
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			rep.Failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	rep.Generated = gen.Stats().Generated - before
	rep.Elapsed = time.Since(start)
	return rep, firstErr
}

func pregenCmd(args []string) {
	fs := flag.NewFlagSet("pregen", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/regions.sqlite)")
	tuningPath := fs.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	dim := fs.String("dim", region.DefaultDimension, "dimension id")
	x := fs.Int("x", 0, "center region x")
	y := fs.Int("y", 0, "center region y")
	radius := fs.Int("radius", 4, "square radius in regions")
	workers := fs.Int("workers", 4, "generation workers")
	_ = fs.Parse(args)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	path := *dbPath
	if path == "" {
		if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "data dir:", err)
			os.Exit(1)
		}
		path = filepath.Join(*dataDir, "regions.sqlite")
	}
	db, err := regiondb.Open(path, log.New(os.Stderr, "[regiondb] ", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	gen, err := region.NewGenerator(region.GeneratorConfig{
		Seed:         tune.Seed,
		Params:       tune.Terrain,
		CacheMaxCost: tune.RegionCacheMaxCost,
	}, db, log.New(os.Stderr, "[region] ", log.LstdFlags))
	if err != nil {
		fmt.Fprintln(os.Stderr, "generator:", err)
		os.Exit(1)
	}
	defer gen.Close()

	rep, err := pregen(context.Background(), gen, *dim, region.Coord{X: *x, Y: *y}, *radius, *workers)
	fmt.Printf("%s regions requested, %s generated, %d failed in %s\n",
		humanize.Comma(int64(rep.Requested)), humanize.Comma(int64(rep.Generated)), rep.Failed, rep.Elapsed.Round(time.Millisecond))
	if err != nil {
		fmt.Fprintln(os.Stderr, "first failure:", err)
		os.Exit(1)
	}
}
