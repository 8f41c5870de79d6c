package region

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"terrastream.ai/internal/sim/failure"
)

type GeneratorConfig struct {
	Seed   int64
	Params Params

	// CacheMaxCost bounds the memory tier, in heightmap nodes.
	CacheMaxCost int64
}

type Stats struct {
	CacheHits uint64 `json:"cache_hits"`
	StoreHits uint64 `json:"store_hits"`
	Generated uint64 `json:"generated"`
	Failures  uint64 `json:"failures"`
}

// Generator resolves regions through three tiers: memory, store, generation.
// It is safe for concurrent use by the worker pools and synchronous callers.
type Generator struct {
	cfg   GeneratorConfig
	store Store
	log   *log.Logger

	cache  *ristretto.Cache[string, *Region]
	flight singleflight.Group
	tracer trace.Tracer

	dimMu sync.RWMutex
	dims  map[string]Dimension

	cacheHits atomic.Uint64
	storeHits atomic.Uint64
	generated atomic.Uint64
	failures  atomic.Uint64
}

func NewGenerator(cfg GeneratorConfig, store Store, logger *log.Logger) (*Generator, error) {
	if store == nil {
		return nil, errors.New("region: nil store")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("region params: %w", err)
	}
	if cfg.CacheMaxCost <= 0 {
		// ~256 regions at the default resolution.
		cfg.CacheMaxCost = 256 * 33 * 33
	}
	counters := cfg.CacheMaxCost / 100
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Region]{
		NumCounters: counters,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("region cache: %w", err)
	}
	return &Generator{
		cfg:    cfg,
		store:  store,
		log:    logger,
		cache:  cache,
		tracer: otel.Tracer("terrastream.ai/region"),
		dims:   map[string]Dimension{},
	}, nil
}

func (g *Generator) Close() {
	g.cache.Close()
}

// DimensionSeed derives the seed of a dimension from the base world seed.
func DimensionSeed(base int64, id string) int64 {
	if id == DefaultDimension || id == "" {
		return base
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return base ^ int64(h.Sum64())
}

// Dimension returns the dimension record, creating it in the store on first
// reference. Store errors are returned to the caller.
func (g *Generator) Dimension(ctx context.Context, id string) (Dimension, error) {
	if id == "" {
		id = DefaultDimension
	}
	g.dimMu.RLock()
	d, ok := g.dims[id]
	g.dimMu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := g.store.GetOrCreateDimension(ctx, id, DimensionSeed(g.cfg.Seed, id), g.cfg.Params)
	if err != nil {
		return Dimension{}, failure.Wrap(failure.Persistence, "dimension "+id, err)
	}
	if err := d.Params.Validate(); err != nil {
		return Dimension{}, failure.Wrap(failure.Persistence, "dimension "+id, fmt.Errorf("stored params: %w", err))
	}
	g.dimMu.Lock()
	g.dims[id] = d
	g.dimMu.Unlock()
	if g.log != nil {
		g.log.Printf("dimension %s seed=%d region_size=%v resolution=%d", d.ID, d.Seed, d.Params.RegionSize, d.Params.Resolution)
	}
	return d, nil
}

func cacheKey(dim string, c Coord) string {
	return fmt.Sprintf("%s|%d|%d", dim, c.X, c.Y)
}

func regionCost(r *Region) int64 {
	return int64(len(r.Heights) + len(r.Placements)*8)
}

// GetOrCreate returns the region for a coordinate. Concurrent callers in this
// process share one resolution; separate processes may still regenerate the
// same region, which is harmless because generation is pure and the store
// upserts.
func (g *Generator) GetOrCreate(ctx context.Context, dimID string, c Coord) (*Region, error) {
	if dimID == "" {
		dimID = DefaultDimension
	}
	key := cacheKey(dimID, c)
	if r, ok := g.cache.Get(key); ok {
		g.cacheHits.Add(1)
		return r, nil
	}

	// The resolution is shared by every caller collapsed onto key, so one
	// caller giving up must not fail the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := g.flight.Do(key, func() (any, error) {
		return g.resolve(shared, dimID, c, key)
	})
	if err != nil {
		g.failures.Add(1)
		return nil, err
	}
	return v.(*Region), nil
}

func (g *Generator) resolve(ctx context.Context, dimID string, c Coord, key string) (*Region, error) {
	ctx, span := g.tracer.Start(ctx, "region.resolve", trace.WithAttributes(
		attribute.String("dimension", dimID),
		attribute.Int("x", c.X),
		attribute.Int("y", c.Y),
	))
	defer span.End()

	r, tier, err := g.resolveTiers(ctx, dimID, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("tier", tier))
	g.cache.Set(key, r, regionCost(r))
	return r, nil
}

func (g *Generator) resolveTiers(ctx context.Context, dimID string, c Coord) (*Region, string, error) {
	dim, err := g.Dimension(ctx, dimID)
	if err != nil {
		return nil, "", err
	}

	stored, err := g.store.GetRegion(ctx, dimID, c)
	if err != nil {
		return nil, "", failure.Wrap(failure.Persistence, "get region "+c.String(), err)
	}
	if stored != nil && stored.Generated {
		if stored.Resolution != dim.Params.Resolution || len(stored.Heights) != (dim.Params.Resolution+1)*(dim.Params.Resolution+1) {
			return nil, "", failure.Wrap(failure.Persistence, "get region "+c.String(),
				fmt.Errorf("stored heightmap resolution %d does not match dimension (%d)", stored.Resolution, dim.Params.Resolution))
		}
		g.storeHits.Add(1)
		return stored, "store", nil
	}

	r, err := Generate(dim, c)
	if err != nil {
		return nil, "", err
	}
	if err := g.store.PutRegion(ctx, dimID, r); err != nil {
		return nil, "", failure.Wrap(failure.Persistence, "put region "+c.String(), err)
	}
	g.generated.Add(1)
	return r, "generate", nil
}

// GroundHeight samples the terrain under a world position. It resolves the
// owning region synchronously and may generate it; it does not go through the
// streaming admission cap.
func (g *Generator) GroundHeight(ctx context.Context, dimID string, x, y float64) (float64, error) {
	dim, err := g.Dimension(ctx, dimID)
	if err != nil {
		return 0, err
	}
	r, err := g.GetOrCreate(ctx, dimID, CoordAt(x, y, dim.Params.RegionSize))
	if err != nil {
		return 0, err
	}
	return r.HeightAt(x, y), nil
}

func (g *Generator) Stats() Stats {
	return Stats{
		CacheHits: g.cacheHits.Load(),
		StoreHits: g.storeHits.Load(),
		Generated: g.generated.Load(),
		Failures:  g.failures.Load(),
	}
}
